package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/raine/carhunt/internal/inventory"
)

func (s *Server) searchCars(c *gin.Context) {
	page, okPage := queryInt(c, "page")
	limit, okLimit := queryInt(c, "limit")
	minPrice, okMin := queryFloat(c, "minPrice")
	maxPrice, okMax := queryFloat(c, "maxPrice")
	if !okPage || !okLimit || !okMin || !okMax {
		c.JSON(http.StatusBadRequest, errorResponse("page, limit, minPrice and maxPrice must be numbers"))
		return
	}

	res, err := s.inventory.SearchCars(c.Request.Context(), currentUserID(c), inventory.CarFilter{
		Search:       strings.TrimSpace(c.Query("search")),
		Make:         c.Query("make"),
		BodyType:     c.Query("bodyType"),
		FuelType:     c.Query("fuelType"),
		Transmission: c.Query("transmission"),
		MinPrice:     minPrice,
		MaxPrice:     maxPrice,
		SortBy:       c.Query("sortBy"),
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(res))
}

func (s *Server) carFilters(c *gin.Context) {
	filters, err := s.inventory.CarFilters(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(filters))
}

func (s *Server) featuredCars(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse("limit must be a number"))
		return
	}
	cars, err := s.inventory.FeaturedCars(c.Request.Context(), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(cars))
}

func (s *Server) getCar(c *gin.Context) {
	car, err := s.inventory.GetCar(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(car))
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(currentUser(c)))
}

func (s *Server) toggleSavedCar(c *gin.Context) {
	saved, err := s.inventory.ToggleSavedCar(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"saved": saved}))
}

func (s *Server) savedCars(c *gin.Context) {
	cars, err := s.inventory.SavedCars(c.Request.Context(), currentUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(cars))
}
