package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlink-service/internal/catalog/importer"
	"marketlink-service/internal/storage"
)

func newRouter(t *testing.T) (chi.Router, *storage.Store) {
	t.Helper()
	return newRouterWithRun(t, nil)
}

func newRouterWithRun(t *testing.T, active ActiveRun) (chi.Router, *storage.Store) {
	t.Helper()
	s, err := storage.Open(context.Background(), ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	r := chi.NewRouter()
	New(importer.New(s, zerolog.Nop()), 1, active, zerolog.Nop()).Mount(r)
	return r, s
}

func upload(t *testing.T, r chi.Router, path, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestImportProducts(t *testing.T) {
	r, s := newRouter(t)
	csv := "Отчёт\nКод товара;Штрихкод;Вид;Пол;Размер;Остаток\nC1;4600001;Ботинки;Ж;38;5\nC2;4600002;Ботинки;Ж;39;1\n"

	rec := upload(t, r, "/imports/products", "catalog.csv", csv, map[string]string{"header_row": "2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res importer.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, importer.KindProducts, res.Kind)
	assert.Equal(t, 2, res.Stats.Written)

	n, err := s.CountProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestImportErrors(t *testing.T) {
	r, _ := newRouter(t)

	assert.Equal(t, http.StatusNotFound, upload(t, r, "/imports/stock", "a.csv", "x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, upload(t, r, "/imports/products", "", "", nil).Code)
	assert.Equal(t, http.StatusUnsupportedMediaType, upload(t, r, "/imports/products", "a.pdf", "x", nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, upload(t, r, "/imports/listings-a", "a.csv", "Наименование\nx\n", nil).Code)
}

func TestImportRejectedWhileRunActive(t *testing.T) {
	running := true
	r, s := newRouterWithRun(t, func() (string, bool) { return "r1", running })
	csv := "Код товара;Штрихкод;Вид;Пол;Размер;Остаток\nC1;4600001;Ботинки;Ж;38;5\n"

	rec := upload(t, r, "/imports/products", "catalog.csv", csv, nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "r1")
	n, err := s.CountProducts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, http.StatusConflict, upload(t, r, "/imports/sizemap", "sizes.csv", "x", nil).Code)
	// листинги прогон не читает
	assert.Equal(t, http.StatusUnprocessableEntity, upload(t, r, "/imports/listings-a", "a.csv", "Наименование\nx\n", nil).Code)

	running = false
	rec = upload(t, r, "/imports/products", "catalog.csv", csv, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	n, err = s.CountProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
