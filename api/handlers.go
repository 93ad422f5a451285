package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/nour-derwich/system-management-pulse-hr/domain"
)

const requestBodyMaxSize = 64 * 1024 // 64 KiB

// Register wires the websocket gateway and the REST resync surface on the
// provided Echo instance.
func Register(e *echo.Echo, svc BoardService, auth Authenticator, b *Broadcaster, logger *log.Logger) {
	e.GET("/ws", serveWS(b, auth, logger))

	g := e.Group("/api")
	g.GET("/boards", listBoards(svc, auth))
	g.POST("/boards", createBoard(svc, auth))
	g.GET("/boards/:boardID", getBoard(svc, auth))
	g.PUT("/boards/:boardID", updateBoard(svc, auth))
	g.DELETE("/boards/:boardID", deleteBoard(svc, auth))
	g.POST("/boards/:boardID/columns", createColumn(svc, auth))
	g.PUT("/boards/:boardID/columns/:columnID", renameColumn(svc, auth))
	g.DELETE("/boards/:boardID/columns/:columnID", deleteColumn(svc, auth))
	g.GET("/tags", listTags(svc, auth))
	g.POST("/tags", createTag(svc, auth))

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// statusFor maps domain failures onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func authorize(c echo.Context, auth Authenticator) (string, error) {
	return auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

func listBoards(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boards, err := svc.ListBoards(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusOK, boards)
	}
}

type createBoardRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DepartmentID string `json:"departmentId,omitempty"`
}

func createBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authorize(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createBoardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		board, err := svc.CreateBoard(c.Request().Context(), domain.Board{
			Name:         req.Name,
			Description:  req.Description,
			DepartmentID: req.DepartmentID,
			CreatedBy:    userID,
		})
		if err != nil {
			return c.String(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusCreated, board)
	}
}

func getBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		snap, err := svc.Snapshot(c.Request().Context(), c.Param("boardID"))
		if err != nil {
			if !domain.IsNotFound(err) {
				c.Logger().Error(err)
			}
			return c.String(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusOK, snap)
	}
}

func updateBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var upd domain.BoardUpdate
		if err := decodeBody(c, &upd); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		board, err := svc.UpdateBoard(c.Request().Context(), c.Param("boardID"), upd)
		if err != nil {
			return c.String(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusOK, board)
	}
}

func deleteBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := svc.DeleteBoard(c.Request().Context(), c.Param("boardID")); err != nil {
			return c.String(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "Board deleted"})
	}
}

type createColumnRequest struct {
	Title string `json:"title"`
}

func createColumn(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createColumnRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col, err := svc.CreateColumn(c.Request().Context(), c.Param("boardID"), req.Title)
		if err != nil {
			return c.String(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusCreated, col)
	}
}

func renameColumn(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createColumnRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col, err := svc.RenameColumn(c.Request().Context(), c.Param("boardID"), c.Param("columnID"), req.Title)
		if err != nil {
			return c.String(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusOK, col)
	}
}

func deleteColumn(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := svc.DeleteColumn(c.Request().Context(), c.Param("boardID"), c.Param("columnID")); err != nil {
			return c.String(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "Column deleted"})
	}
}

func listTags(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tags, err := svc.ListTags(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusOK, tags)
	}
}

type createTagRequest struct {
	Title string `json:"title"`
	Color string `json:"color"`
}

func createTag(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createTagRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		tag, err := svc.CreateTag(c.Request().Context(), domain.Tag{Title: req.Title, Color: req.Color})
		if err != nil {
			return c.String(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusCreated, tag)
	}
}
