package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/raine/carhunt/internal/imagedata"
	"github.com/raine/carhunt/internal/inventory"
	"github.com/raine/carhunt/internal/llm"
)

const defaultMaxImageBytes = 5 << 20

// maxEncodedImage is the largest base64 text accepted for one image, plus
// room for the surrounding JSON.
func (s *Server) maxEncodedImage() int64 {
	n := s.cfg.MaxImageBytes
	if n <= 0 {
		n = defaultMaxImageBytes
	}
	return n/3*4 + 8 + 64<<10
}

func (s *Server) adminListCars(c *gin.Context) {
	cars, err := s.inventory.ListCars(c.Request.Context(), c.Query("search"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(cars))
}

type addCarRequest struct {
	CarData inventory.CarInput `json:"carData"`
	Images  []string           `json:"images"`
}

func (s *Server) addCar(c *gin.Context) {
	maxImages := int64(max(s.cfg.MaxImages, 1))
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImages*s.maxEncodedImage())

	var req addCarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	res, err := s.inventory.AddCar(c.Request.Context(), req.CarData, req.Images)
	if err != nil {
		if res != nil && errors.Is(err, inventory.ErrInvalidInput) {
			body := errorResponse(err.Error())
			body["images"] = res.Images
			c.JSON(http.StatusBadRequest, body)
			return
		}
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(res))
}

// extractCarDetails accepts either a multipart upload with an "image" file or
// a JSON body holding the image in any of the supported submission shapes.
func (s *Server) extractCarDetails(c *gin.Context) {
	var sub imagedata.Submission
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		data, mediaType, err := s.readImageFile(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		sub = imagedata.FromBytes(data, mediaType)
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxEncodedImage()))
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return
		}
		sub, err = imagedata.ParseSubmission(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid image data: "+err.Error()))
			return
		}
	}

	res := s.extractor.Extract(c.Request.Context(), sub)
	c.JSON(extractionStatus(res), res)
}

func (s *Server) readImageFile(c *gin.Context) ([]byte, string, error) {
	limit := s.cfg.MaxImageBytes
	if limit <= 0 {
		limit = defaultMaxImageBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)

	header, err := c.FormFile("image")
	if err != nil {
		return nil, "", fmt.Errorf("image file is required: %w", err)
	}
	if header.Size > limit {
		return nil, "", fmt.Errorf("image is larger than %d bytes", limit)
	}

	f, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("image is larger than %d bytes", limit)
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}
	return data, mediaType, nil
}

func extractionStatus(res llm.Result) int {
	if res.Success {
		return http.StatusOK
	}
	var (
		cerr *llm.ConfigurationError
		nerr *imagedata.NormalizationError
		merr *llm.ModelInvocationError
		perr *llm.ParseError
	)
	switch {
	case errors.As(res.Err, &cerr):
		return http.StatusServiceUnavailable
	case errors.As(res.Err, &nerr):
		return http.StatusBadRequest
	case errors.As(res.Err, &merr), errors.As(res.Err, &perr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type updateCarRequest struct {
	Status   *string `json:"status"`
	Featured *bool   `json:"featured"`
}

func (s *Server) updateCar(c *gin.Context) {
	var req updateCarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	car, err := s.inventory.UpdateCarStatus(c.Request.Context(), c.Param("id"), req.Status, req.Featured)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(car))
}

func (s *Server) deleteCar(c *gin.Context) {
	if err := s.inventory.DeleteCar(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(nil))
}
