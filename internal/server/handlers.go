package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ppiankov/applytrail/internal/model"
	"github.com/ppiankov/applytrail/internal/pipeline"
)

const dateLayout = "2006-01-02"

type startRunRequest struct {
	LookbackDays   int    `json:"lookback_days"`
	MaxItems       int    `json:"max_items"`
	After          string `json:"after"` // YYYY-MM-DD, local time
	SinceWatermark bool   `json:"since_watermark"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"run_active": s.orch.IsRunActive(),
	})
}

func (s *Server) startRun(c *gin.Context) {
	var body startRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	req := pipeline.RunRequest{
		LookbackDays:   body.LookbackDays,
		MaxItems:       body.MaxItems,
		SinceWatermark: body.SinceWatermark,
	}
	if body.After != "" {
		after, err := time.ParseInLocation(dateLayout, body.After, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("after must be %s", dateLayout)})
			return
		}
		req.After = after
	}

	progress := make(chan model.Event, subscriberBuffer)
	req.Progress = progress

	run, err := s.orch.StartRun(s.runCtx, req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	events := newBroadcaster()
	go events.pump(progress)
	s.track(run, events)

	s.logger.Info("run started over http", zap.String("run_id", run.ID))
	c.JSON(http.StatusAccepted, run.Status())
}

func (s *Server) activeRun(c *gin.Context) {
	run := s.orch.ActiveRun()
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active run"})
		return
	}
	c.JSON(http.StatusOK, run.Status())
}

func (s *Server) cancelRun(c *gin.Context) {
	id := s.orch.ActiveRunID()
	if !s.orch.CancelActiveRun() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true, "run_id": id})
}

func (s *Server) getRun(c *gin.Context) {
	tr, ok := s.lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, tr.run.Status())
}

// streamEvents replays a run's events as server-sent events and follows the
// stream until the run ends or the client goes away. Clients resume with
// Last-Event-ID or ?after=<seq>.
func (s *Server) streamEvents(c *gin.Context) {
	tr, ok := s.lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	after := 0
	if v := c.GetHeader("Last-Event-ID"); v != "" {
		after, _ = strconv.Atoi(v)
	}
	if v := c.Query("after"); v != "" {
		after, _ = strconv.Atoi(v)
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	replay, live, unsubscribe := tr.events.subscribe(after)
	defer unsubscribe()

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)

	for _, ev := range replay {
		sseWrite(c.Writer, ev)
	}
	flusher.Flush()

	if live == nil {
		return
	}

	clientClosed := c.Request.Context().Done()
	for {
		select {
		case <-clientClosed:
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			sseWrite(c.Writer, ev)
			flusher.Flush()
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, ev model.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		payload = []byte(fmt.Sprintf("%q", err.Error()))
	}
	_, _ = fmt.Fprintf(w, "id: %d\n", ev.Seq)
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Kind)
	for _, line := range strings.Split(string(payload), "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func (s *Server) listRecords(c *gin.Context) {
	records, err := s.records.ReadAll(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "records": records})
}

func (s *Server) export(c *gin.Context) {
	res, err := s.orch.ExportRecords(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.orch.ScanStats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) clearSeen(c *gin.Context) {
	if err := s.orch.ClearSeenHistory(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// settingsView is Settings with credentials masked
type settingsView struct {
	Backend       string            `json:"backend"`
	Credentials   map[string]string `json:"credentials"`
	LookbackDays  int               `json:"lookback_days"`
	MaxItems      int               `json:"max_items"`
	Authenticated bool              `json:"authenticated"`
	Watermark     time.Time         `json:"watermark,omitempty"`
}

func viewOf(s model.Settings) settingsView {
	return settingsView{
		Backend:       s.Backend,
		Credentials:   s.MaskedCredentials(),
		LookbackDays:  s.LookbackDays,
		MaxItems:      s.MaxItems,
		Authenticated: s.Authenticated,
		Watermark:     s.Watermark,
	}
}

// settingsPatch holds the editable fields; nil means unchanged. An empty
// credential removes it.
type settingsPatch struct {
	Backend      *string           `json:"backend"`
	LookbackDays *int              `json:"lookback_days"`
	MaxItems     *int              `json:"max_items"`
	Credentials  map[string]string `json:"credentials"`
}

func (p settingsPatch) apply(s *model.Settings) error {
	if p.Backend != nil {
		s.Backend = strings.ToLower(*p.Backend)
	}
	if p.LookbackDays != nil {
		s.LookbackDays = *p.LookbackDays
	}
	if p.MaxItems != nil {
		s.MaxItems = *p.MaxItems
	}
	for backend, key := range p.Credentials {
		backend = strings.ToLower(backend)
		if key == "" {
			delete(s.Credentials, backend)
			continue
		}
		s.Credentials[backend] = key
	}
	return nil
}

func (s *Server) getSettings(c *gin.Context) {
	settings, err := s.settings.Load(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(settings))
}

func (s *Server) putSettings(c *gin.Context) {
	var patch settingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	settings, err := s.settings.Update(c.Request.Context(), patch.apply)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(settings))
}
