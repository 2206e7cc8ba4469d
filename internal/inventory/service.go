package inventory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raine/carhunt/internal/imagedata"
	"github.com/raine/carhunt/internal/notify"
	"github.com/raine/carhunt/internal/objectstore"
	"github.com/raine/carhunt/internal/storage"
	"github.com/rs/zerolog/log"
)

// UploadPolicy decides what happens to a listing when some of its images fail.
type UploadPolicy string

const (
	// PolicyPartial keeps the images that succeeded and fails only when none did.
	PolicyPartial UploadPolicy = "partial"
	// PolicyAtomic fails the listing on the first bad image and removes the
	// images already uploaded.
	PolicyAtomic UploadPolicy = "atomic"
)

func ParseUploadPolicy(s string) (UploadPolicy, error) {
	switch p := UploadPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyPartial:
		return PolicyPartial, nil
	case PolicyAtomic:
		return PolicyAtomic, nil
	default:
		return "", fmt.Errorf("unknown upload policy %q", s)
	}
}

// Store is the persistence used by the inventory.
type Store interface {
	CreateCar(ctx context.Context, car *storage.Car) error
	GetCar(ctx context.Context, id string) (*storage.Car, error)
	QueryCars(ctx context.Context, q storage.CarQuery) ([]storage.Car, int, error)
	DeleteCar(ctx context.Context, id string) (bool, error)
	UpdateCarStatus(ctx context.Context, id string, status *string, featured *bool) (*storage.Car, error)
	CarFilterOptions(ctx context.Context) (*storage.FilterOptions, error)
	ToggleSavedCar(ctx context.Context, userID, carID string) (bool, error)
	SavedCarIDs(ctx context.Context, userID string, carIDs []string) (map[string]bool, error)
	SavedCars(ctx context.Context, userID string) ([]storage.Car, error)
	ListTestDrives(ctx context.Context, q storage.TestDriveQuery) ([]storage.TestDriveDetail, error)
}

type Options struct {
	Policy        UploadPolicy
	MaxImages     int
	MaxImageBytes int64
}

// Service manages the car inventory: admin ingestion and maintenance and
// public browsing.
type Service struct {
	store   Store
	objects objectstore.Store
	events  notify.Publisher
	opts    Options
	now     func() time.Time
}

func NewService(store Store, objects objectstore.Store, events notify.Publisher, opts Options) *Service {
	if opts.Policy == "" {
		opts.Policy = PolicyPartial
	}
	return &Service{
		store:   store,
		objects: objects,
		events:  events,
		opts:    opts,
		now:     time.Now,
	}
}

// ImageOutcome reports what happened to one submitted image.
type ImageOutcome struct {
	Index int    `json:"index"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

type AddCarResult struct {
	Car    *storage.Car   `json:"car"`
	Images []ImageOutcome `json:"images"`
}

// AddCar validates the listing, uploads its images and stores it. Each image
// string may be any submission shape understood by imagedata. Per-image
// failures are reported in the result; whether they fail the whole listing
// depends on the upload policy.
func (s *Service) AddCar(ctx context.Context, in CarInput, images []string) (*AddCarResult, error) {
	in.normalize()
	if err := in.Validate(s.now()); err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", ErrInvalidInput)
	}
	if s.opts.MaxImages > 0 && len(images) > s.opts.MaxImages {
		return nil, fmt.Errorf("%w: at most %d images are allowed", ErrInvalidInput, s.opts.MaxImages)
	}

	carID := uuid.New().String()
	outcomes := make([]ImageOutcome, 0, len(images))
	var urls, uploaded []string

	for i, raw := range images {
		outcome := ImageOutcome{Index: i}
		path, err := s.uploadImage(ctx, carID, i, raw)
		if err != nil {
			outcome.Err = err
			outcome.Error = err.Error()
			log.Warn().Err(err).Str("carID", carID).Int("index", i).Msg("image rejected")
		} else {
			outcome.URL = s.objects.PublicURL(path)
			uploaded = append(uploaded, path)
			urls = append(urls, outcome.URL)
		}
		outcomes = append(outcomes, outcome)

		if err != nil && s.opts.Policy == PolicyAtomic {
			s.removeObjects(carID, uploaded)
			return &AddCarResult{Images: outcomes}, fmt.Errorf("%w: image %d: %v", ErrInvalidInput, i, err)
		}
		if ctx.Err() != nil {
			s.removeObjects(carID, uploaded)
			return &AddCarResult{Images: outcomes}, ctx.Err()
		}
	}

	if len(urls) == 0 {
		return &AddCarResult{Images: outcomes}, fmt.Errorf("%w: no valid images were uploaded", ErrInvalidInput)
	}

	car := &storage.Car{
		ID:           carID,
		Make:         in.Make,
		Model:        in.Model,
		Year:         in.Year,
		Price:        in.Price,
		Mileage:      in.Mileage,
		Color:        in.Color,
		FuelType:     in.FuelType,
		Transmission: in.Transmission,
		BodyType:     in.BodyType,
		Seats:        in.Seats,
		Description:  in.Description,
		Status:       in.Status,
		Featured:     in.Featured,
		Images:       urls,
	}
	if err := s.store.CreateCar(ctx, car); err != nil {
		s.removeObjects(carID, uploaded)
		return &AddCarResult{Images: outcomes}, err
	}

	log.Info().Str("carID", car.ID).Int("images", len(urls)).Int("rejected", len(images)-len(urls)).Msg("car added")
	if s.events != nil {
		s.events.Publish(notify.Event{Kind: notify.CarListed, Car: car})
	}

	return &AddCarResult{Car: car, Images: outcomes}, nil
}

// uploadImage normalizes one submitted image and stores it, returning the
// object path.
func (s *Service) uploadImage(ctx context.Context, carID string, index int, raw string) (string, error) {
	img, err := imagedata.Normalize(imagedata.FromValue(raw))
	if err != nil {
		return "", err
	}
	if !img.IsImage() {
		return "", fmt.Errorf("unsupported media type %q", img.MediaType)
	}
	if s.opts.MaxImageBytes > 0 && int64(len(img.Bytes())) > s.opts.MaxImageBytes {
		return "", fmt.Errorf("image is larger than %d bytes", s.opts.MaxImageBytes)
	}

	path := fmt.Sprintf("cars/%s/image-%d-%d.%s", carID, s.now().UnixMilli(), index, img.Extension())
	if err := s.objects.Upload(ctx, path, img.Bytes(), img.MediaType); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Service) removeObjects(carID string, paths []string) {
	if len(paths) == 0 {
		return
	}
	// The request context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.objects.Remove(ctx, paths); err != nil {
		log.Error().Err(err).Str("carID", carID).Strs("paths", paths).Msg("failed to remove uploaded images")
	}
}

// ListCars returns all listings for the admin panel, newest first,
// optionally filtered by make, model or color.
func (s *Service) ListCars(ctx context.Context, search string) ([]storage.Car, error) {
	cars, _, err := s.store.QueryCars(ctx, storage.CarQuery{Search: search, SortBy: storage.SortNewest})
	return cars, err
}

// DeleteCar removes the listing and then its stored images. Failing to remove
// images is logged but does not fail the deletion.
func (s *Service) DeleteCar(ctx context.Context, id string) error {
	car, err := s.store.GetCar(ctx, id)
	if err != nil {
		return err
	}
	if car == nil {
		return ErrNotFound
	}

	deleted, err := s.store.DeleteCar(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	var paths []string
	for _, u := range car.Images {
		if path, ok := s.objects.PathFromURL(u); ok {
			paths = append(paths, path)
		} else {
			log.Warn().Str("carID", id).Str("url", u).Msg("image url is not in the bucket")
		}
	}
	if len(paths) > 0 {
		if err := s.objects.Remove(ctx, paths); err != nil {
			log.Error().Err(err).Str("carID", id).Msg("failed to delete car images")
		}
	}

	log.Info().Str("carID", id).Int("images", len(paths)).Msg("car deleted")
	return nil
}

// UpdateCarStatus changes the status and/or featured flag of a listing.
func (s *Service) UpdateCarStatus(ctx context.Context, id string, status *string, featured *bool) (*storage.Car, error) {
	if status == nil && featured == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if status != nil {
		st := strings.ToUpper(strings.TrimSpace(*status))
		if !slices.Contains(storage.CarStatuses, st) {
			return nil, fmt.Errorf("%w: status must be one of %s", ErrInvalidInput, strings.Join(storage.CarStatuses, ", "))
		}
		status = &st
	}

	car, err := s.store.UpdateCarStatus(ctx, id, status, featured)
	if err != nil {
		return nil, err
	}
	if car == nil {
		return nil, ErrNotFound
	}
	return car, nil
}
