package api

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/claimdesk/claimdesk/internal/imaging"
	"github.com/claimdesk/claimdesk/internal/model"
	"github.com/claimdesk/claimdesk/internal/store"
)

// CatalogHandler handles catalog ingestion and item browsing.
type CatalogHandler struct {
	DB *sql.DB
}

// Replace handles POST /api/catalog. The body is a CSV with name, price and
// availability columns (header row required, any order). The previous catalog
// is delisted atomically with the new one going live.
func (h *CatalogHandler) Replace(w http.ResponseWriter, r *http.Request) {
	entries, err := parseCatalogCSV(r.Body)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(entries) == 0 {
		jsonError(w, http.StatusBadRequest, "catalog has no rows")
		return
	}

	items, err := store.ReplaceCatalog(r.Context(), h.DB, entries)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	jsonResponse(w, http.StatusCreated, items)
}

// List handles GET /api/items.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListItems(r.Context(), h.DB)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Get handles GET /api/items/{id}.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// UploadPhoto handles PUT /api/items/{id}/photo. The raw body is the photo;
// format is sniffed, oversized photos are downscaled.
func (h *CatalogHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	photo, err := imaging.ProcessPhoto(r.Body)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetItemPhoto(r.Context(), h.DB, id, photo.Data, photo.MIME); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to save photo")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "photo uploaded"})
}

// GetPhoto handles GET /api/items/{id}/photo.
func (h *CatalogHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	data, mime, err := store.GetItemPhoto(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get photo")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no photo")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// parseCatalogCSV reads a catalog upload. Column order is free; headers are
// matched case-insensitively. Quantity must be a non-negative integer, price
// validation happens in the store.
func parseCatalogCSV(r io.Reader) ([]store.CatalogEntry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	nameCol, priceCol, qtyCol := -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "name":
			nameCol = i
		case "price":
			priceCol = i
		case "availability", "quantity", "qty":
			qtyCol = i
		}
	}
	if nameCol < 0 || priceCol < 0 || qtyCol < 0 {
		return nil, fmt.Errorf("csv needs name, price and availability columns")
	}

	var entries []store.CatalogEntry
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		line++

		qty, err := strconv.Atoi(strings.TrimSpace(record[qtyCol]))
		if err != nil || qty < 0 {
			return nil, fmt.Errorf("line %d: invalid availability %q", line, record[qtyCol])
		}

		entries = append(entries, store.CatalogEntry{
			Name:     strings.TrimSpace(record[nameCol]),
			Price:    strings.TrimSpace(record[priceCol]),
			Quantity: qty,
		})
	}
	return entries, nil
}
