package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raine/carhunt/internal/testdrive"
	"github.com/raine/carhunt/internal/trophy"
)

func (s *Server) bookTestDrive(c *gin.Context) {
	var in testdrive.BookingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	td, err := s.testDrives.Book(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(td))
}

func (s *Server) reservations(c *gin.Context) {
	res, err := s.testDrives.UserReservations(c.Request.Context(), currentUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(res))
}

func (s *Server) cancelTestDrive(c *gin.Context) {
	user := currentUser(c)
	td, err := s.testDrives.Cancel(c.Request.Context(), user.ID, user.IsAdmin(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(td))
}

func (s *Server) adminTestDrives(c *gin.Context) {
	drives, err := s.testDrives.AdminList(c.Request.Context(), testdrive.AdminFilter{
		Search: c.Query("search"),
		Status: c.Query("status"),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(drives))
}

type updateTestDriveRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) updateTestDrive(c *gin.Context) {
	var req updateTestDriveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	td, err := s.testDrives.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(td))
}

func (s *Server) trophies(c *gin.Context) {
	drives, err := s.testDrives.All(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(trophy.Build(drives, c.Query("search"))))
}
