package inventory

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raine/carhunt/internal/notify"
	"github.com/raine/carhunt/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	mu       sync.Mutex
	uploads  map[string][]byte
	types    map[string]string
	removed  []string
	failNext int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploads: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("storage unavailable")
	}
	f.uploads[path] = data
	f.types[path] = contentType
	return nil
}

func (f *fakeObjects) Remove(ctx context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, paths...)
	return nil
}

func (f *fakeObjects) PublicURL(path string) string {
	return "https://store.test/storage/v1/object/public/car-images/" + path
}

func (f *fakeObjects) PathFromURL(u string) (string, bool) {
	return strings.CutPrefix(u, "https://store.test/storage/v1/object/public/car-images/")
}

type recordingPublisher struct {
	events []notify.Event
}

func (p *recordingPublisher) Publish(e notify.Event) {
	p.events = append(p.events, e)
}

var fixedNow = time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts Options) (*Service, *storage.SQLiteStore, *fakeObjects, *recordingPublisher) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	objects := newFakeObjects()
	events := &recordingPublisher{}
	s := NewService(store, objects, events, opts)
	s.now = func() time.Time { return fixedNow }
	return s, store, objects, events
}

func validInput() CarInput {
	return CarInput{
		Make:         "Toyota",
		Model:        "Camry",
		Year:         2022,
		Price:        26500,
		Mileage:      15000,
		Color:        "Silver",
		FuelType:     "Petrol",
		Transmission: "Automatic",
		BodyType:     "Sedan",
		Seats:        5,
		Description:  "One owner, full service history",
	}
}

func dataURL(mediaType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
}

var (
	pngBytes  = []byte(strings.Repeat("png!", 40))
	jpegBytes = []byte(strings.Repeat("jpg?", 40))
)

func TestAddCar(t *testing.T) {
	s, store, objects, events := newTestService(t, Options{})

	res, err := s.AddCar(context.Background(), validInput(), []string{
		dataURL("image/png", pngBytes),
		base64.StdEncoding.EncodeToString(jpegBytes),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Car)
	assert.Equal(t, storage.CarAvailable, res.Car.Status)
	require.Len(t, res.Images, 2)

	ms := fixedNow.UnixMilli()
	pngPath := fmt.Sprintf("cars/%s/image-%d-0.png", res.Car.ID, ms)
	jpegPath := fmt.Sprintf("cars/%s/image-%d-1.jpeg", res.Car.ID, ms)
	assert.Equal(t, pngBytes, objects.uploads[pngPath])
	assert.Equal(t, "image/png", objects.types[pngPath])
	assert.Equal(t, jpegBytes, objects.uploads[jpegPath])
	assert.Equal(t, []string{objects.PublicURL(pngPath), objects.PublicURL(jpegPath)}, res.Car.Images)

	stored, err := store.GetCar(context.Background(), res.Car.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Car.Images, stored.Images)

	require.Len(t, events.events, 1)
	assert.Equal(t, notify.CarListed, events.events[0].Kind)
}

func TestAddCar_PartialPolicyKeepsGoodImages(t *testing.T) {
	s, _, objects, _ := newTestService(t, Options{Policy: PolicyPartial})

	res, err := s.AddCar(context.Background(), validInput(), []string{
		"too short",
		dataURL("image/png", pngBytes),
		dataURL("application/pdf", pngBytes),
	})
	require.NoError(t, err)
	require.Len(t, res.Images, 3)
	assert.Error(t, res.Images[0].Err)
	assert.NotEmpty(t, res.Images[0].Error)
	assert.NotEmpty(t, res.Images[1].URL)
	assert.Contains(t, res.Images[2].Error, "unsupported media type")
	assert.Len(t, res.Car.Images, 1)
	assert.Len(t, objects.uploads, 1)
}

func TestAddCar_NoValidImages(t *testing.T) {
	s, store, _, events := newTestService(t, Options{})

	res, err := s.AddCar(context.Background(), validInput(), []string{"nope", "also nope"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "no valid images were uploaded")
	require.NotNil(t, res)
	assert.Len(t, res.Images, 2)

	cars, _, err := store.QueryCars(context.Background(), storage.CarQuery{})
	require.NoError(t, err)
	assert.Empty(t, cars)
	assert.Empty(t, events.events)
}

func TestAddCar_AtomicPolicyRollsBack(t *testing.T) {
	s, store, objects, _ := newTestService(t, Options{Policy: PolicyAtomic})

	_, err := s.AddCar(context.Background(), validInput(), []string{
		dataURL("image/png", pngBytes),
		dataURL("image/png", pngBytes),
		"broken",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Len(t, objects.removed, 2)

	cars, _, err := store.QueryCars(context.Background(), storage.CarQuery{})
	require.NoError(t, err)
	assert.Empty(t, cars)
}

func TestAddCar_UploadFailure(t *testing.T) {
	s, _, objects, _ := newTestService(t, Options{})
	objects.failNext = 1

	res, err := s.AddCar(context.Background(), validInput(), []string{
		dataURL("image/png", pngBytes),
		dataURL("image/png", pngBytes),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Images[0].Error, "storage unavailable")
	assert.Len(t, res.Car.Images, 1)
}

func TestAddCar_Limits(t *testing.T) {
	s, _, _, _ := newTestService(t, Options{MaxImages: 1, MaxImageBytes: 100})

	_, err := s.AddCar(context.Background(), validInput(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "at most 1 images")

	_, err = s.AddCar(context.Background(), validInput(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	res, err := s.AddCar(context.Background(), validInput(), []string{dataURL("image/png", pngBytes)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, res.Images[0].Error, "larger than 100 bytes")
}

func TestCarInput_Validate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*CarInput)
		want   string
	}{
		"missing make":      {func(in *CarInput) { in.Make = "" }, "make is required"},
		"year too old":      {func(in *CarInput) { in.Year = 1899 }, "year must be between 1900 and 2027"},
		"year too new":      {func(in *CarInput) { in.Year = 2028 }, "year must be between"},
		"negative price":    {func(in *CarInput) { in.Price = -1 }, "price must not be negative"},
		"negative mileage":  {func(in *CarInput) { in.Mileage = -5 }, "mileage must not be negative"},
		"too many seats":    {func(in *CarInput) { in.Seats = 51 }, "seats must be between 1 and 50"},
		"short description": {func(in *CarInput) { in.Description = "Nice car" }, "at least 10 characters"},
		"bad status":        {func(in *CarInput) { in.Status = "GONE" }, "status must be one of"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			err := in.Validate(fixedNow)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	in := validInput()
	in.Year = 2027
	in.Seats = 0
	assert.NoError(t, in.Validate(fixedNow))
}

func TestDeleteCar(t *testing.T) {
	s, store, objects, _ := newTestService(t, Options{})
	ctx := context.Background()

	res, err := s.AddCar(ctx, validInput(), []string{dataURL("image/png", pngBytes), dataURL("image/png", pngBytes)})
	require.NoError(t, err)

	require.NoError(t, s.DeleteCar(ctx, res.Car.ID))
	assert.Len(t, objects.removed, 2)
	for _, u := range res.Car.Images {
		path, _ := objects.PathFromURL(u)
		assert.Contains(t, objects.removed, path)
	}

	car, err := store.GetCar(ctx, res.Car.ID)
	require.NoError(t, err)
	assert.Nil(t, car)

	assert.ErrorIs(t, s.DeleteCar(ctx, res.Car.ID), ErrNotFound)
}

func TestUpdateCarStatus(t *testing.T) {
	s, _, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	res, err := s.AddCar(ctx, validInput(), []string{dataURL("image/png", pngBytes)})
	require.NoError(t, err)

	sold := "sold"
	car, err := s.UpdateCarStatus(ctx, res.Car.ID, &sold, nil)
	require.NoError(t, err)
	assert.Equal(t, storage.CarSold, car.Status)

	featured := true
	car, err = s.UpdateCarStatus(ctx, res.Car.ID, nil, &featured)
	require.NoError(t, err)
	assert.True(t, car.Featured)
	assert.Equal(t, storage.CarSold, car.Status)

	bogus := "LOST"
	_, err = s.UpdateCarStatus(ctx, res.Car.ID, &bogus, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.UpdateCarStatus(ctx, res.Car.ID, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.UpdateCarStatus(ctx, "missing", &sold, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseUploadPolicy(t *testing.T) {
	p, err := ParseUploadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyPartial, p)

	p, err = ParseUploadPolicy(" Atomic ")
	require.NoError(t, err)
	assert.Equal(t, PolicyAtomic, p)

	_, err = ParseUploadPolicy("sometimes")
	assert.Error(t, err)
}
