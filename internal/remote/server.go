package remote

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/roach88/rollbook/internal/domain"
)

// NewServer exposes backend over the JSON/HTTP API that Client speaks.
func NewServer(backend Remote) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handlers{backend: backend}
	v1 := router.Group("/v1")
	v1.HEAD("/health", h.health)
	v1.GET("/health", h.health)
	v1.PUT("/teachers/:id", h.upsertTeacher)
	v1.GET("/teachers/:id/classes", h.listClasses)
	v1.POST("/classes", h.createClass)
	v1.PATCH("/classes/:id", h.updateClass)
	v1.DELETE("/classes/:id", h.deleteClass)
	v1.POST("/classes/:id/students", h.createStudent)
	v1.POST("/classes/:id/sessions", h.createSession)
	v1.GET("/classes/:id/sessions", h.sessionsByClass)
	v1.PATCH("/students/:id", h.updateStudent)
	v1.DELETE("/students/:id", h.deleteStudent)
	v1.PUT("/sessions/:id/records/:student", h.recordAttendance)
	return router
}

type handlers struct {
	backend Remote
}

func (h *handlers) health(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (h *handlers) upsertTeacher(c *gin.Context) {
	var body teacherDTO
	if !bind(c, &body) {
		return
	}
	t := body.domain()
	t.ID = c.Param("id")
	out, err := h.backend.UpsertTeacher(c.Request.Context(), t)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTeacherDTO(out))
}

func (h *handlers) listClasses(c *gin.Context) {
	classes, err := h.backend.ListClasses(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]classDTO, 0, len(classes))
	for _, cl := range classes {
		out = append(out, toClassDTO(cl))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) createClass(c *gin.Context) {
	var body classRequest
	if !bind(c, &body) {
		return
	}
	in := domain.ClassInput{Name: body.Name, Section: body.Section}
	out, err := h.backend.CreateClass(c.Request.Context(), body.TeacherID, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toClassDTO(out))
}

func (h *handlers) updateClass(c *gin.Context) {
	var body classRequest
	if !bind(c, &body) {
		return
	}
	in := domain.ClassInput{Name: body.Name, Section: body.Section}
	out, err := h.backend.UpdateClass(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toClassDTO(out))
}

func (h *handlers) deleteClass(c *gin.Context) {
	if err := h.backend.DeleteClass(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) createStudent(c *gin.Context) {
	var body studentRequest
	if !bind(c, &body) {
		return
	}
	in := domain.StudentInput{ClassID: c.Param("id"), Name: body.Name}
	out, err := h.backend.CreateStudent(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toStudentDTO(out))
}

func (h *handlers) updateStudent(c *gin.Context) {
	var body studentRequest
	if !bind(c, &body) {
		return
	}
	in := domain.StudentInput{ClassID: body.ClassID, Name: body.Name}
	out, err := h.backend.UpdateStudent(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toStudentDTO(out))
}

func (h *handlers) deleteStudent(c *gin.Context) {
	if err := h.backend.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) createSession(c *gin.Context) {
	var body sessionRequest
	if !bind(c, &body) {
		return
	}
	out, err := h.backend.CreateSession(c.Request.Context(), c.Param("id"), body.Date)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionDTO(out))
}

func (h *handlers) sessionsByClass(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, NewError(CodeInvalid, "sessions by class", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	sessions, err := h.backend.SessionsByClass(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]sessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionDTO(s))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) recordAttendance(c *gin.Context) {
	var body recordRequest
	if !bind(c, &body) {
		return
	}
	req := RecordRequest{
		SessionID: c.Param("id"),
		StudentID: c.Param("student"),
		ClassID:   body.ClassID,
		Status:    domain.Status(body.Status),
		TakenAt:   body.TakenAt,
	}
	out, err := h.backend.RecordAttendance(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecordDTO(out))
}

// bind decodes the JSON body into v, responding 400 on failure.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, WrapError(CodeInvalid, "decode body", err))
		return false
	}
	return true
}

// fail writes err as an error body with the status its code maps to.
func fail(c *gin.Context, err error) {
	code := CodeOf(err)
	msg := err.Error()
	var re *Error
	if errors.As(err, &re) {
		switch {
		case re.Message != "":
			msg = re.Message
		case re.Err != nil:
			msg = re.Err.Error()
		}
	}
	var body errorBody
	body.Error.Code = code
	body.Error.Message = msg
	c.AbortWithStatusJSON(code.HTTPStatus(), body)
}
