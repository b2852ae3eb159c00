package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cutline/cutline-agent/internal/export"
)

// exportEDLHandler renders the locally cached timeline of a project as an
// EDL file. It reads the cache rather than the remote store so the export
// works offline and reflects the last saved state.
func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportEDLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.ProjectID == "" {
			WriteError(w, http.StatusBadRequest, "project_id is required", "BAD_REQUEST")
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		rec, err := cfg.Store.GetProjectCache(r.Context(), req.ProjectID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to read project cache", "INTERNAL_ERROR")
			return
		}
		if rec == nil || rec.Timeline == nil {
			WriteError(w, http.StatusUnprocessableEntity, "no cached timeline for project", "NO_TIMELINE")
			return
		}

		title := export.SanitizeEDLName(req.Title, export.MaxTitleLen)
		if title == "" {
			if t, ok := rec.Project["title"].(string); ok {
				title = export.SanitizeEDLName(t, export.MaxTitleLen)
			}
		}
		if title == "" {
			title = "cutline_export"
		}

		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = 30.0
		}

		clips := export.ResolveTimeline(rec.Timeline, req.AssetPaths)
		if len(clips) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "timeline has no exportable clips", "NO_CLIPS")
			return
		}

		edl := export.GenerateEDL(clips, title, frameRate)
		outputPath := filepath.Join(req.OutputDir, title+".edl")
		if err := os.WriteFile(outputPath, []byte(edl), 0o644); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, ExportEDLResponse{
			Status:     "ok",
			OutputPath: outputPath,
			ClipCount:  len(clips),
		})
	}
}
