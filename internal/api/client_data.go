// ABOUTME: Handlers for the caller's tenant data: records, settings and file refs
// ABOUTME: The tenant is always the scope's client; no client id is read from the request

package api

import (
	"net/http"
	"strconv"

	"github.com/2389/tower-gateway/internal/auth"
	"github.com/2389/tower-gateway/internal/records"
	"github.com/2389/tower-gateway/internal/session"
)

type createRecordRequest struct {
	Key   *string `json:"key"`
	Value string  `json:"value"`
}

type updateRecordRequest struct {
	Key   *string `json:"key"`
	Value *string `json:"value"`
}

type createFileRequest struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
}

func scopeOf(r *http.Request) *session.Scope {
	return auth.MustFromContext(r.Context()).Scope
}

// pathID parses the {id} path value. Anything that is not a positive
// integer cannot name a row, so it is reported as notFound.
func pathID(r *http.Request, notFound error) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, notFound
	}
	return id, nil
}

// handleListRecords handles GET /api/client/data.
func (a *API) handleListRecords(w http.ResponseWriter, r *http.Request) {
	list, err := a.records.ListRecords(r.Context(), scopeOf(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	data := make([]recordView, 0, len(list))
	for i := range list {
		data = append(data, newRecordView(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  data,
		"total": len(data),
	})
}

// handleCreateRecord handles POST /api/client/data.
func (a *API) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Key == nil {
		a.writeError(w, r, records.ErrMissingKey)
		return
	}

	rec, err := a.records.CreateRecord(r.Context(), scopeOf(r), *req.Key, req.Value)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "record created",
		"data":    newRecordView(rec),
	})
}

// handleGetRecord handles GET /api/client/data/{id}.
func (a *API) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, records.ErrRecordNotFound)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	rec, err := a.records.GetRecord(r.Context(), scopeOf(r), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": newRecordView(rec)})
}

// handleUpdateRecord handles PUT /api/client/data/{id}.
func (a *API) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, records.ErrRecordNotFound)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req updateRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	rec, err := a.records.UpdateRecord(r.Context(), scopeOf(r), id, records.RecordPatch{
		Key:   req.Key,
		Value: req.Value,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "record updated",
		"data":    newRecordView(rec),
	})
}

// handleDeleteRecord handles DELETE /api/client/data/{id}.
func (a *API) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, records.ErrRecordNotFound)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.records.DeleteRecord(r.Context(), scopeOf(r), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("record deleted"))
}

// handleGetSettings handles GET /api/client/settings.
func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.records.GetSettings(r.Context(), scopeOf(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	raw := make([]settingView, 0, len(settings.Rows))
	for _, s := range settings.Rows {
		raw = append(raw, settingView{
			ID:           s.ID,
			SettingKey:   s.Key,
			SettingValue: s.Value,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"settings":     settings.Values,
		"raw_settings": raw,
	})
}

// handleUpsertSettings handles POST /api/client/settings.
func (a *API) handleUpsertSettings(w http.ResponseWriter, r *http.Request) {
	var values map[string]interface{}
	if err := decodeJSON(w, r, &values); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.records.UpsertSettings(r.Context(), scopeOf(r), values); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("settings updated"))
}

// handleListFiles handles GET /api/client/files.
func (a *API) handleListFiles(w http.ResponseWriter, r *http.Request) {
	list, err := a.records.ListFiles(r.Context(), scopeOf(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	files := make([]fileView, 0, len(list))
	for i := range list {
		files = append(files, newFileView(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"files": files,
		"total": len(files),
	})
}

// handleCreateFile handles POST /api/client/files.
func (a *API) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req createFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	f, err := a.records.CreateFile(r.Context(), scopeOf(r), records.FileRef{
		Filename: req.Filename,
		Path:     req.Path,
		Type:     req.Type,
		Size:     req.Size,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "file registered",
		"file":    newFileView(f),
	})
}

// handleDeleteFile handles DELETE /api/client/files/{id}.
func (a *API) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, records.ErrFileRefNotFound)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.records.DeleteFile(r.Context(), scopeOf(r), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("file deleted"))
}
