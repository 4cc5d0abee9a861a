package main

import (
	"net/http"

	"github.com/clipwave/clipwave/internal/events"
	"github.com/clipwave/clipwave/internal/store"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/gin-gonic/gin"
)

// uploadProjectHandler stages the multipart "video" file, makes it the current
// file and creates a project for it with the session's default settings
func (api *API) uploadProjectHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	header, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No video file provided"})
		return
	}

	body, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read video file"})
		return
	}
	defer body.Close()

	ctx := c.Request.Context()
	staged, err := api.uploads.Stage(ctx, st.UserID(), header.Filename, header.Header.Get("Content-Type"), header.Size, body)
	if err != nil {
		api.respondError(c, err)
		return
	}

	p, err := api.factory.Create(ctx, staged.File, st.VideoSettings())
	if err != nil {
		api.uploads.Release(ctx, st.UserID())
		api.respondError(c, err)
		return
	}
	if err := st.SetCurrentVideoFile(ctx, staged.File); err != nil {
		// The project is never added, so nothing else will release its URL
		for _, url := range p.URLs() {
			api.registry.Revoke(ctx, url)
		}
		api.uploads.Release(ctx, st.UserID())
		api.respondError(c, err)
		return
	}
	st.AddProject(p)
	api.save(c, st)
	api.publish(ctx, events.New(models.EventProjectCreated, st.UserID(), p.ID))

	c.JSON(http.StatusCreated, p)
}

func (api *API) listProjectsHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": st.Projects()})
}

func (api *API) getCurrentProjectHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	p := st.CurrentProject()
	if p == nil {
		api.respondError(c, &store.MissingStateError{What: "current project"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (api *API) setCurrentProjectHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	var req struct {
		ProjectID *string `json:"project_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	// A null project id clears the selection
	if req.ProjectID == nil {
		st.SetCurrentProject(nil)
		api.save(c, st)
		c.JSON(http.StatusOK, gin.H{"current_project": nil})
		return
	}

	p, found := st.Project(*req.ProjectID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	st.SetCurrentProject(p)
	api.save(c, st)

	c.JSON(http.StatusOK, gin.H{"current_project": p})
}

func (api *API) getProjectHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	p, found := st.Project(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (api *API) updateProjectHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if _, found := st.Project(id); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	var patch models.ProjectPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := st.UpdateProject(id, patch); err != nil {
		api.respondError(c, err)
		return
	}
	api.save(c, st)

	p, _ := st.Project(id)
	c.JSON(http.StatusOK, p)
}

func (api *API) deleteProjectHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if api.processor.Cancel(st.UserID(), id) {
		api.processor.Wait(st.UserID(), id)
	}
	api.processor.Forget(st.UserID(), id)

	ctx := c.Request.Context()
	if !st.DeleteProject(ctx, id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	api.save(c, st)
	api.publish(ctx, events.New(models.EventProjectDeleted, st.UserID(), id))

	c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully", "project_id": id})
}

func (api *API) startProcessingHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := api.processor.Start(c.Request.Context(), st.UserID(), id); err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"project_id": id, "status": models.ProjectStatusProcessing})
}

func (api *API) cancelProcessingHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	id := c.Param("id")
	cancelled := api.processor.Cancel(st.UserID(), id)
	if cancelled {
		api.processor.Wait(st.UserID(), id)
	}

	c.JSON(http.StatusOK, gin.H{"project_id": id, "cancelled": cancelled})
}

// projectEventsHandler upgrades to a websocket that streams the project's
// events, starting with its current status
func (api *API) projectEventsHandler(c *gin.Context) {
	st, ok := api.session(c)
	if !ok {
		return
	}

	p, found := st.Project(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	initial := events.New(models.EventStepProgress, st.UserID(), p.ID)
	initial.Status = p.Status
	if i := p.ActiveStep(); i >= 0 {
		initial.StepIndex = i
		initial.Progress = p.Steps[i].Progress
	}

	if err := api.hub.Serve(c.Writer, c.Request, p.ID, &initial); err != nil {
		api.logger.WithProjectID(p.ID).WithError(err).Debug("event stream ended")
	}
}
