// Package api exposes the key/value map and the canonical order over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bitwebs/bitstream/internal/engine"
	"github.com/bitwebs/bitstream/internal/kv"
	"github.com/bitwebs/bitstream/internal/model"
)

// API serves HTTP requests against one engine and its key/value view.
type API struct {
	eng *engine.Engine
	kv  *kv.Map
}

// NewAPI creates an API over eng. Writes go to m's local writer.
func NewAPI(eng *engine.Engine, m *kv.Map) *API {
	return &API{
		eng: eng,
		kv:  m,
	}
}

// NewRouter builds a gin engine with logging, recovery and all routes.
func NewRouter(a *API) *gin.Engine {
	r := gin.New()
	// Keys may contain '/', sent escaped as %2F.
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(Logger(), Recovery())
	a.SetupRoutes(r)
	return r
}

// SetupRoutes registers every API route on r.
func (a *API) SetupRoutes(r *gin.Engine) {
	kvGroup := r.Group("/kv")
	{
		kvGroup.PUT("/:key", a.PutKey)
		kvGroup.GET("/:key", a.GetKey)
		kvGroup.GET("/:key/conflict", a.GetConflict)
	}

	r.GET("/conflicts", a.ListConflicts)
	r.GET("/order", a.GetOrder)
	r.POST("/writers/:id/append", a.AppendEntries)
}

// PutRequest is the body of PUT /kv/:key.
type PutRequest struct {
	Value    string `json:"value" binding:"required"`
	Isolated bool   `json:"isolated"`
}

// AppendRequest is the body of POST /writers/:id/append.
type AppendRequest struct {
	Payloads []string `json:"payloads" binding:"required,min=1"`
	Isolated bool     `json:"isolated"`
}

type recordResponse struct {
	Value      string           `json:"value"`
	Provenance model.Provenance `json:"provenance"`
}

func toRecordResponse(rec model.Record) recordResponse {
	return recordResponse{Value: string(rec.Value), Provenance: rec.Provenance}
}

// PutKey appends a put to the local writer. The value is visible once the
// update loop has applied it.
func (a *API) PutKey(c *gin.Context) {
	key := c.Param("key")
	var req PutRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var opts []kv.PutOption
	if req.Isolated {
		opts = append(opts, kv.Isolated())
	}
	entry, err := a.kv.Put(c.Request.Context(), []byte(key), []byte(req.Value), opts...)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"writer": entry.Writer,
		"seq":    entry.Seq,
		"id":     entry.ID,
	})
}

// GetKey returns the current value of a key with its provenance.
func (a *API) GetKey(c *gin.Context) {
	key := c.Param("key")

	rec, ok, err := a.kv.Record(c.Request.Context(), []byte(key))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}

	c.JSON(http.StatusOK, toRecordResponse(rec))
}

// GetConflict returns the value a key's current write shadowed, if any.
func (a *API) GetConflict(c *gin.Context) {
	key := c.Param("key")

	rec, ok, err := a.kv.Conflict(c.Request.Context(), []byte(key))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no conflict"})
		return
	}

	c.JSON(http.StatusOK, toRecordResponse(rec))
}

// ListConflicts returns every unresolved conflict in the view.
func (a *API) ListConflicts(c *gin.Context) {
	conflicts, err := a.kv.Conflicts(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, len(conflicts))
	for i, cf := range conflicts {
		out[i] = gin.H{
			"key":      string(cf.Key),
			"current":  toRecordResponse(cf.Current),
			"shadowed": toRecordResponse(cf.Shadowed),
		}
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": out})
}

// GetOrder returns the canonical order with the writer ranking and the
// order hash.
func (a *API) GetOrder(c *gin.Context) {
	snap, err := a.eng.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	hash, err := snap.Hash()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	order := snap.Order()
	refs := make([]string, len(order))
	for i, ref := range order {
		refs[i] = ref.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"order":   refs,
		"ranking": snap.Ranking(),
		"lengths": snap.Lengths(),
		"hash":    hash,
	})
}

// AppendEntries appends raw payloads to one writer as a single batch.
func (a *API) AppendEntries(c *gin.Context) {
	writer := model.WriterID(c.Param("id"))
	var req AppendRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	clk, err := a.eng.Latest(ctx)
	if req.Isolated {
		clk, err = a.eng.Head(ctx, writer)
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	payloads := make([][]byte, len(req.Payloads))
	for i, p := range req.Payloads {
		payloads[i] = []byte(p)
	}
	entries, err := a.eng.Append(ctx, writer, clk, payloads...)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	refs := make([]string, len(entries))
	for i, e := range entries {
		refs[i] = e.Ref().String()
	}
	c.JSON(http.StatusAccepted, gin.H{"entries": refs})
}

// statusFor maps engine error codes to HTTP statuses.
func statusFor(err error) int {
	switch engine.Code(err) {
	case engine.ErrCodeReservedKey, engine.ErrCodeDecode:
		return http.StatusBadRequest
	case engine.ErrCodeUnknownWriter:
		return http.StatusNotFound
	case engine.ErrCodeStaleClock, engine.ErrCodeReentrancy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
