package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Register wires up all REST routes, plus the board socket when ws is non-nil.
func Register(e *echo.Echo, svc Service, auth Authenticator, ws echo.HandlerFunc, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	read := requireAuth(auth)
	mutate := []echo.MiddlewareFunc{mutationMetrics(logger), requireAuth(auth)}

	e.GET("/api/health", health())

	g := e.Group("/api", sessionOrigin())
	g.GET("/boards", listBoards(svc), read)
	g.POST("/boards", createBoard(svc), mutate...)
	g.GET("/boards/:id", getBoard(svc), read)
	g.POST("/boards/:id/members", addMember(svc), mutate...)
	g.GET("/boards/:id/search", searchCards(svc), read)

	g.POST("/lists", createList(svc), mutate...)
	g.PUT("/lists/:id", updateList(svc), mutate...)
	g.PUT("/lists/:id/move", moveList(svc), mutate...)
	g.PUT("/lists/:id/archive", archiveList(svc), mutate...)
	g.DELETE("/lists/:id", deleteList(svc), mutate...)

	g.POST("/cards", createCard(svc), mutate...)
	g.PUT("/cards/:id", updateCard(svc), mutate...)
	g.PUT("/cards/:id/move", moveCard(svc), mutate...)
	g.DELETE("/cards/:id", deleteCard(svc), mutate...)

	g.POST("/comments", addComment(svc), mutate...)
	g.GET("/comments/card/:cardId", listComments(svc), read)

	g.GET("/activities/board/:boardId", listActivities(svc), read)
	g.GET("/activities/card/:cardId", listCardActivities(svc), read)

	if ws != nil {
		e.GET("/ws", ws)
	}
}

func health() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{Status: "OK", Timestamp: time.Now().UTC().Format(time.RFC3339)})
	}
}

func listBoards(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		boards, err := svc.ListBoards(c.Request().Context(), principal(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, boards)
	}
}

func createBoard(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.BoardInput
		if err := decodeBody(c, &in); err != nil {
			return fail(c, err)
		}
		start := time.Now()
		view, err := svc.CreateBoard(c.Request().Context(), principal(c), in)
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		metricsFrom(c).SetBoard(view.ID)
		return c.JSON(http.StatusCreated, view)
	}
}

func getBoard(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		view, err := svc.GetBoard(c.Request().Context(), principal(c), c.Param("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, view)
	}
}

func addMember(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req memberRequest
		if err := decodeBody(c, &req); err != nil {
			return fail(c, err)
		}
		boardID := c.Param("id")
		metricsFrom(c).SetBoard(boardID)
		start := time.Now()
		b, err := svc.AddMember(c.Request().Context(), principal(c), boardID, req.UserID, req.Role)
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, b)
	}
}

func createList(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.ListInput
		if err := decodeBody(c, &in); err != nil {
			return fail(c, err)
		}
		metricsFrom(c).SetBoard(in.BoardID)
		start := time.Now()
		l, err := svc.CreateList(c.Request().Context(), principal(c), in)
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusCreated, l)
	}
}

func updateList(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var ch domain.ListChanges
		if err := decodeBody(c, &ch); err != nil {
			return fail(c, err)
		}
		start := time.Now()
		l, err := svc.UpdateList(c.Request().Context(), principal(c), c.Param("id"), ch)
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		metricsFrom(c).SetBoard(l.BoardID)
		return c.JSON(http.StatusOK, l)
	}
}

func moveList(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.MoveRequest
		if err := decodeBody(c, &req); err != nil {
			return fail(c, err)
		}
		start := time.Now()
		res, err := svc.MoveList(c.Request().Context(), principal(c), c.Param("id"), req)
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		metricsFrom(c).SetBoard(res.List.BoardID)
		return c.JSON(http.StatusOK, res)
	}
}

func archiveList(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		l, err := svc.ArchiveList(c.Request().Context(), principal(c), c.Param("id"))
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		metricsFrom(c).SetBoard(l.BoardID)
		return c.JSON(http.StatusOK, l)
	}
}

func deleteList(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		deleted, err := svc.DeleteList(c.Request().Context(), principal(c), c.Param("id"))
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		if !deleted {
			return c.JSON(http.StatusOK, messageResponse{Message: "list archived"})
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "list deleted", Deleted: true})
	}
}

func createCard(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.CardInput
		if err := decodeBody(c, &in); err != nil {
			return fail(c, err)
		}
		start := time.Now()
		card, err := svc.CreateCard(c.Request().Context(), principal(c), in)
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		metricsFrom(c).SetBoard(card.BoardID)
		return c.JSON(http.StatusCreated, card)
	}
}

func updateCard(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var ch domain.CardChanges
		if err := decodeBody(c, &ch); err != nil {
			return fail(c, err)
		}
		start := time.Now()
		card, err := svc.UpdateCard(c.Request().Context(), principal(c), c.Param("id"), ch)
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		metricsFrom(c).SetBoard(card.BoardID)
		return c.JSON(http.StatusOK, card)
	}
}

func moveCard(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.MoveRequest
		if err := decodeBody(c, &req); err != nil {
			return fail(c, err)
		}
		start := time.Now()
		res, err := svc.MoveCard(c.Request().Context(), principal(c), c.Param("id"), req)
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		metricsFrom(c).SetBoard(res.Card.BoardID)
		return c.JSON(http.StatusOK, res)
	}
}

func deleteCard(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		deleted, err := svc.DeleteCard(c.Request().Context(), principal(c), c.Param("id"))
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		if !deleted {
			return c.JSON(http.StatusOK, messageResponse{Message: "card already deleted"})
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "card deleted", Deleted: true})
	}
}

func addComment(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.CommentInput
		if err := decodeBody(c, &in); err != nil {
			return fail(c, err)
		}
		start := time.Now()
		cm, err := svc.AddComment(c.Request().Context(), principal(c), in)
		metricsFrom(c).ObserveService(time.Since(start))
		if err != nil {
			return fail(c, err)
		}
		metricsFrom(c).SetBoard(cm.BoardID)
		return c.JSON(http.StatusCreated, cm)
	}
}

func listComments(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		comments, err := svc.ListComments(c.Request().Context(), principal(c), c.Param("cardId"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, comments)
	}
}

func listActivities(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, err := intParam(c, "limit")
		if err != nil {
			return fail(c, err)
		}
		page, err := intParam(c, "page")
		if err != nil {
			return fail(c, err)
		}
		q, err := domain.NewActivityQuery(c.QueryParam("filter"), limit, page)
		if err != nil {
			return fail(c, err)
		}
		acts, err := svc.ListActivities(c.Request().Context(), principal(c), c.Param("boardId"), q)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, activitiesResponse{Activities: acts, Page: q.Page, Limit: q.Limit})
	}
}

func listCardActivities(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, err := intParam(c, "limit")
		if err != nil {
			return fail(c, err)
		}
		acts, err := svc.ListCardActivities(c.Request().Context(), principal(c), c.Param("cardId"), limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, acts)
	}
}

// searchCards filters a board's cards by q, labels, assignees (both
// comma-separated) and dueDate.
func searchCards(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		q := domain.CardSearch{
			Text:      c.QueryParam("q"),
			Labels:    csvParam(c, "labels"),
			Assignees: csvParam(c, "assignees"),
			Due:       domain.DueFilter(strings.ToLower(strings.TrimSpace(c.QueryParam("dueDate")))),
		}
		cards, err := svc.SearchCards(c.Request().Context(), principal(c), c.Param("id"), q)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, cards)
	}
}

func csvParam(c echo.Context, name string) []string {
	var out []string
	for _, v := range strings.Split(c.QueryParam(name), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// intParam parses an optional non-negative query parameter; absent means 0.
func intParam(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &domain.ValidationError{Field: name, Message: "must be a non-negative integer"}
	}
	return n, nil
}
