package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/clipwave/clipwave/internal/blob"
	"github.com/clipwave/clipwave/internal/playback"
	"github.com/clipwave/clipwave/internal/videoutil"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/gin-gonic/gin"
)

func (api *API) getSettingsHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, st.VideoSettings())
}

func (api *API) updateSettingsHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	var patch models.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := st.UpdateVideoSettings(patch); err != nil {
		api.respondError(c, err)
		return
	}
	api.save(c, st)

	c.JSON(http.StatusOK, st.VideoSettings())
}

// validateFileHandler checks file metadata before an upload is attempted
func (api *API) validateFileHandler(c *gin.Context) {
	var req models.FileInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := videoutil.ValidateVideoFile(req.Type, req.Size); err != nil {
		ve, _ := videoutil.AsValidation(err)
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": ve.Message, "kind": ve.Kind})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":        true,
		"name":         videoutil.StripExtension(req.Name),
		"size_display": videoutil.FormatFileSize(req.Size),
	})
}

func (api *API) getSessionHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, st.State())
}

func (api *API) clearSessionFileHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := st.SetCurrentVideoFile(ctx, nil); err != nil {
		api.respondError(c, err)
		return
	}
	api.uploads.Release(ctx, st.UserID())

	c.JSON(http.StatusOK, st.State())
}

func (api *API) setSessionURLHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	st.SetCurrentVideoURL(req.URL)

	c.JSON(http.StatusOK, st.State())
}

func (api *API) playbackHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	res, err := api.playback.Resolve(c.Request.Context(), st)
	api.respondPlayback(c, res, err)
}

func (api *API) playbackRetryHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	res, err := api.playback.Retry(c.Request.Context(), st)
	api.respondPlayback(c, res, err)
}

func (api *API) playbackLoadedHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	p := st.CurrentProject()
	if p == nil {
		c.JSON(http.StatusOK, gin.H{"retries": 0})
		return
	}
	api.playback.Loaded(p.ID)
	c.JSON(http.StatusOK, gin.H{"project_id": p.ID, "retries": 0})
}

func (api *API) respondPlayback(c *gin.Context, res *playback.Resolution, err error) {
	if errors.Is(err, playback.ErrResourceLoad) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      err.Error(),
			"retry":      res != nil && res.RetriesLeft > 0,
			"resolution": res,
		})
		return
	}
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// blobHandler streams the bytes behind a live object URL. A download query
// parameter turns the response into an attachment with that file name.
func (api *API) blobHandler(c *gin.Context) {
	rc, obj, err := api.registry.Open(c.Request.Context(), blob.Scheme+c.Param("id"))
	if err != nil {
		if errors.Is(err, blob.ErrNotLive) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
			return
		}
		api.respondError(c, err)
		return
	}
	defer rc.Close()

	headers := map[string]string{}
	if name := c.Query("download"); name != "" {
		headers["Content-Disposition"] = fmt.Sprintf("attachment; filename=%q", name)
	}
	c.DataFromReader(http.StatusOK, obj.Size, obj.Type, rc, headers)
}
