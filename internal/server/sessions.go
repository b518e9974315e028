package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/brochure-composer/internal/utils"
	"github.com/menta2k/brochure-composer/pkg/annotate"
	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/loader"
	"github.com/menta2k/brochure-composer/pkg/products"
	"github.com/menta2k/brochure-composer/pkg/region"
	"github.com/menta2k/brochure-composer/pkg/render"
	"github.com/menta2k/brochure-composer/pkg/session"
	"github.com/menta2k/brochure-composer/pkg/store"
)

type imageView struct {
	Ref    string         `json:"ref"`
	Scale  float64        `json:"scale"`
	Offset geometry.Point `json:"offset"`
}

type regionView struct {
	store.RegionRecord
	Image *imageView `json:"image,omitempty"`
	Text  string     `json:"text,omitempty"`
}

func viewOf(r *region.Region) regionView {
	v := regionView{RegionRecord: store.EncodeRegion(r)}
	switch c := r.Content.(type) {
	case *region.ImageFill:
		if c.Assigned() {
			v.Image = &imageView{Ref: c.Ref, Scale: c.Scale, Offset: c.Offset}
		}
	case *region.TextFill:
		v.Text = c.Text
	}
	return v
}

type textView struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Position geometry.Point   `json:"position"`
	Style    region.TextStyle `json:"style"`
}

type sessionView struct {
	ID             string             `json:"id"`
	TemplateID     string             `json:"template_id"`
	Status         session.Status     `json:"status"`
	Regions        []regionView       `json:"regions"`
	Texts          []textView         `json:"texts"`
	Products       []products.Product `json:"products"`
	AvailableTexts []string           `json:"available_texts"`
}

func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.sessions.Get(c.Param("sid"))
	if err != nil {
		failErr(c, "session not found", err)
		return nil, false
	}
	return sess, true
}

func (s *Server) describe(sess *session.Session) (*sessionView, error) {
	status, err := sess.Status()
	if err != nil {
		return nil, err
	}
	regions, err := sess.Regions()
	if err != nil {
		return nil, err
	}
	texts, err := sess.Texts()
	if err != nil {
		return nil, err
	}
	v := &sessionView{
		ID:             sess.ID,
		TemplateID:     sess.Template().ID,
		Status:         status,
		Regions:        make([]regionView, len(regions)),
		Texts:          make([]textView, len(texts)),
		Products:       sess.Products(),
		AvailableTexts: sess.AvailableTexts(),
	}
	for i, r := range regions {
		v.Regions[i] = viewOf(r)
	}
	for i, t := range texts {
		v.Texts[i] = textView{ID: t.ID, Text: t.Text, Position: t.Position, Style: t.Style}
	}
	return v, nil
}

func (s *Server) reply(c *gin.Context, sess *session.Session, message string) {
	v, err := s.describe(sess)
	if err != nil {
		failErr(c, "session unavailable", err)
		return
	}
	ok(c, message, v)
}

type openRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
}

func (s *Server) openSession(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "template_id is required", err)
		return
	}
	tpl, err := s.store.Get(c.Request.Context(), req.TemplateID)
	if err != nil {
		failErr(c, "template not found", err)
		return
	}
	sess, err := s.sessions.Open(c.Request.Context(), tpl)
	if err != nil {
		s.logger.Error("failed to open session", zap.String("template", tpl.ID), zap.Error(err))
		fail(c, http.StatusUnprocessableEntity, "failed to open session", err)
		return
	}
	v, err := s.describe(sess)
	if err != nil {
		failErr(c, "session unavailable", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Message: "session opened", Data: v})
}

func (s *Server) sessionState(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	s.reply(c, sess, "ok")
}

func (s *Server) closeSession(c *gin.Context) {
	if err := s.sessions.Close(c.Param("sid")); err != nil {
		failErr(c, "failed to close session", err)
		return
	}
	ok(c, "session closed", nil)
}

type eventReply struct {
	session.Outcome
	Committed *regionView `json:"committed,omitempty"`
}

func (s *Server) dispatch(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	var ev session.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		fail(c, http.StatusBadRequest, "invalid event", err)
		return
	}
	out, err := sess.Dispatch(ev)
	if err != nil {
		failErr(c, "event rejected", err)
		return
	}
	rep := eventReply{Outcome: out}
	if out.Committed != nil {
		v := viewOf(out.Committed)
		rep.Committed = &v
	}
	ok(c, "ok", rep)
}

type editorRequest struct {
	Mode  annotate.Mode    `json:"mode"`
	Shape region.ShapeKind `json:"shape"`
	Kind  region.Kind      `json:"kind"`
}

func (s *Server) setEditor(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	var req editorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid editor settings", err)
		return
	}
	if req.Mode != "" {
		if req.Mode != annotate.ModeAnnotate && req.Mode != annotate.ModeAssign {
			fail(c, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode), nil)
			return
		}
		if err := sess.SetMode(req.Mode); err != nil {
			failErr(c, "failed to set mode", err)
			return
		}
	}
	if req.Shape != "" {
		if err := sess.SetShape(req.Shape); err != nil {
			fail(c, http.StatusBadRequest, "failed to set shape", err)
			return
		}
	}
	if req.Kind != "" {
		if err := sess.SetKind(req.Kind); err != nil {
			fail(c, http.StatusBadRequest, "failed to set kind", err)
			return
		}
	}
	s.reply(c, sess, "editor updated")
}

type imageRequest struct {
	Ref string `json:"ref" binding:"required"`
}

func (s *Server) assignImage(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "ref is required", err)
		return
	}
	if !loader.IsFetchable(req.Ref) {
		fail(c, http.StatusBadRequest, "ref must be an http(s) url or a data uri", nil)
		return
	}
	if err := sess.AssignImage(c.Param("rid"), req.Ref); err != nil {
		failErr(c, "failed to assign image", err)
		return
	}
	s.reply(c, sess, "image assigned")
}

type textRequest struct {
	Text  string            `json:"text"`
	Style *region.TextStyle `json:"style"`
	X     float64           `json:"x"`
	Y     float64           `json:"y"`
}

func (r textRequest) style() region.TextStyle {
	if r.Style == nil {
		return region.DefaultTextStyle()
	}
	return r.Style.Normalized()
}

func (s *Server) assignText(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid text", err)
		return
	}
	if err := sess.AssignText(c.Param("rid"), req.Text, req.style()); err != nil {
		failErr(c, "failed to assign text", err)
		return
	}
	s.reply(c, sess, "text assigned")
}

func (s *Server) setStyle(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	var st region.TextStyle
	if err := c.ShouldBindJSON(&st); err != nil {
		fail(c, http.StatusBadRequest, "invalid style", err)
		return
	}
	if err := sess.SetStyle(c.Param("rid"), st); err != nil {
		failErr(c, "failed to set style", err)
		return
	}
	s.reply(c, sess, "style updated")
}

func (s *Server) deleteRegion(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	if err := sess.DeleteRegion(c.Param("rid")); err != nil {
		failErr(c, "failed to delete region", err)
		return
	}
	s.reply(c, sess, "region deleted")
}

type zoomRequest struct {
	Action session.ZoomAction `json:"action" binding:"required"`
}

func (s *Server) zoom(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "action is required", err)
		return
	}
	switch req.Action {
	case session.ZoomIn, session.ZoomOut, session.ZoomReset:
	default:
		fail(c, http.StatusBadRequest, fmt.Sprintf("unknown zoom action %q", req.Action), nil)
		return
	}
	tr, err := sess.Zoom(c.Param("rid"), req.Action)
	if err != nil {
		failErr(c, "failed to zoom", err)
		return
	}
	ok(c, "ok", tr)
}

type panRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

func (s *Server) pan(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	var req panRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid pan", err)
		return
	}
	tr, err := sess.Pan(c.Param("rid"), req.DX, req.DY)
	if err != nil {
		failErr(c, "failed to pan", err)
		return
	}
	ok(c, "ok", tr)
}

func (s *Server) addText(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid text", err)
		return
	}
	st := req.style()
	t, err := sess.AddText(req.Text, geometry.Pt(req.X, req.Y), &st)
	if err != nil {
		failErr(c, "failed to add text", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Message: "text added",
		Data: textView{ID: t.ID, Text: t.Text, Position: t.Position, Style: t.Style}})
}

func (s *Server) updateText(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid text", err)
		return
	}
	if err := sess.UpdateText(c.Param("tid"), req.Text, req.style()); err != nil {
		failErr(c, "failed to update text", err)
		return
	}
	s.reply(c, sess, "text updated")
}

func (s *Server) deleteText(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	if err := sess.DeleteText(c.Param("tid")); err != nil {
		failErr(c, "failed to delete text", err)
		return
	}
	s.reply(c, sess, "text deleted")
}

type preloadView struct {
	Loaded []string          `json:"loaded"`
	Failed map[string]string `json:"failed"`
}

func viewOfReport(r *session.PreloadReport) preloadView {
	v := preloadView{Loaded: r.Loaded, Failed: make(map[string]string, len(r.Failed))}
	if v.Loaded == nil {
		v.Loaded = []string{}
	}
	for ref, err := range r.Failed {
		v.Failed[ref] = err.Error()
	}
	return v
}

func (s *Server) loadProducts(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	var in []products.Product
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "invalid products", err)
		return
	}
	report, err := sess.LoadProducts(c.Request.Context(), in)
	if err != nil {
		failErr(c, "failed to load products", err)
		return
	}
	ok(c, "products loaded", viewOfReport(report))
}

type removalRequest struct {
	ProductIDs []string `json:"product_ids" binding:"required"`
}

func (s *Server) removeBackgrounds(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	var req removalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "product_ids is required", err)
		return
	}
	report, err := sess.RemoveBackgrounds(c.Request.Context(), req.ProductIDs)
	if err != nil {
		failErr(c, "background removal failed", err)
		return
	}
	ok(c, "backgrounds removed", viewOfReport(report))
}

// renderView returns the editor or preview canvas as PNG.
func (s *Server) renderView(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	view := session.View(c.DefaultQuery("view", string(session.ViewPreview)))
	if view != session.ViewPreview && view != session.ViewEditor {
		fail(c, http.StatusBadRequest, fmt.Sprintf("unknown view %q", view), nil)
		return
	}
	res, err := sess.Render(c.Request.Context(), view)
	if err != nil {
		failErr(c, "render failed", err)
		return
	}
	var buf bytes.Buffer
	if err := render.Encode(&buf, res.Image, render.FormatPNG, 0); err != nil {
		failErr(c, "render failed", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("X-Render-Failures", strconv.Itoa(len(res.Failures)))
	c.Data(http.StatusOK, render.FormatPNG.ContentType(), buf.Bytes())
}

// exportImage renders at ?scale= and sends the file as a download.
func (s *Server) exportImage(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	opts := s.export
	if v := c.Query("scale"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !render.ValidExportScale(n) {
			fail(c, http.StatusBadRequest, "scale must be 1, 2 or 3", err)
			return
		}
		opts.Scale = n
	}
	if v := c.Query("format"); v != "" {
		f, err := render.ParseFormat(v)
		if err != nil {
			fail(c, http.StatusBadRequest, "unsupported format", err)
			return
		}
		opts.Format = f
	}
	if v := c.Query("quality"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil || q < 1 || q > 100 {
			fail(c, http.StatusBadRequest, "quality must be between 1 and 100", err)
			return
		}
		opts.Quality = q
	}
	start := time.Now()
	out, err := sess.Export(c.Request.Context(), opts)
	if err != nil {
		s.logger.Error("export failed", zap.String("session", sess.ID), zap.Error(err))
		failErr(c, "export failed", err)
		return
	}
	name := utils.ExportFilename(sess.Template().Name, string(out.Format))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Header("X-Render-Failures", strconv.Itoa(len(out.Failures)))
	c.Data(http.StatusOK, out.ContentType, out.Data)
	s.logger.Debug("export sent", zap.String("file", name), zap.Duration("cost", time.Since(start)))
}

func (s *Server) save(c *gin.Context) {
	sess, found := s.session(c)
	if !found {
		return
	}
	tpl, err := sess.Save(c.Request.Context(), s.store)
	if err != nil {
		s.logger.Error("failed to save session", zap.String("session", sess.ID), zap.Error(err))
		failErr(c, "failed to save template", err)
		return
	}
	ok(c, "template saved", tpl)
}
