package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Validation errors. These abort the mutation and leave the document
// unchanged; everything else degrades silently.
var (
	ErrNameRequired = errors.New("app name is required")
	ErrURLRequired  = errors.New("app url is required")
	ErrAppNotFound  = errors.New("app not found")
	ErrCityNotFound = errors.New("city not found")
)

// Saver persists the full document. Every mutation rewrites the whole
// document; the last write wins and no conflict detection is performed.
type Saver interface {
	Save(doc Document) error
}

// SaverFunc adapts a function to the Saver interface.
type SaverFunc func(doc Document) error

// Save implements Saver.
func (f SaverFunc) Save(doc Document) error { return f(doc) }

// Location is a geocoding candidate: a resolved place with coordinates.
type Location struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Region    string  `json:"region,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geocoder resolves a free-text place name to candidate locations.
type Geocoder interface {
	Geocode(ctx context.Context, name string, count int) ([]Location, error)
}

// Store is the single mutation entry point for the in-memory document.
// Every mutation applies the change, persists the full document, and leaves
// rendering to callers via Document() snapshots. Persistence failures are
// logged and otherwise ignored: the dashboard stays usable on whatever
// state it has.
type Store struct {
	mu       sync.Mutex
	doc      Document
	saver    Saver
	logger   zerolog.Logger
	editMode bool
}

// NewStore wraps an already-reconciled document.
func NewStore(doc Document, saver Saver, logger zerolog.Logger) *Store {
	doc.EnsureWidgets()
	return &Store{doc: doc, saver: saver, logger: logger}
}

// Document returns a deep-copied snapshot of the current state.
func (s *Store) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// SetEditMode flips the transient edit flag. Edit mode is never persisted;
// it only suppresses reachability probing and toggles card affordances.
func (s *Store) SetEditMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editMode = on
}

// EditMode reports whether the dashboard is being edited.
func (s *Store) EditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editMode
}

// save persists the current document. Called with the mutex held.
func (s *Store) save() {
	if err := s.saver.Save(s.doc.Clone()); err != nil {
		s.logger.Warn().Err(err).Msg("saving dashboard document failed")
	}
}

// AppInput carries the user-editable fields of an app tile.
type AppInput struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Desc     string `json:"desc"`
	URL      string `json:"url"`
	Icon     string `json:"icon"`
}

func (in *AppInput) validate() error {
	if in.Name == "" {
		return ErrNameRequired
	}
	if in.URL == "" {
		return ErrURLRequired
	}
	in.URL = NormalizeURL(in.URL)
	if in.Category == "" {
		in.Category = "General"
	}
	if in.Icon == "" {
		in.Icon = "dashboard"
	}
	return nil
}

// AddApp validates and appends a new app tile, assigning a fresh
// time-derived id.
func (s *Store) AddApp(in AppInput) (App, error) {
	if err := in.validate(); err != nil {
		return App{}, err
	}
	app := App{
		ID:       NewAppID(),
		Category: in.Category,
		Name:     in.Name,
		Desc:     in.Desc,
		URL:      in.URL,
		Icon:     in.Icon,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Apps = append(s.doc.Apps, app)
	s.save()
	return app, nil
}

// UpdateApp replaces every field of the app except its id, applying the
// same validation and normalization as AddApp.
func (s *Store) UpdateApp(id int64, in AppInput) (App, error) {
	if err := in.validate(); err != nil {
		return App{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Apps {
		if s.doc.Apps[i].ID != id {
			continue
		}
		s.doc.Apps[i].Category = in.Category
		s.doc.Apps[i].Name = in.Name
		s.doc.Apps[i].Desc = in.Desc
		s.doc.Apps[i].URL = in.URL
		s.doc.Apps[i].Icon = in.Icon
		s.save()
		return s.doc.Apps[i], nil
	}
	return App{}, fmt.Errorf("%w: %d", ErrAppNotFound, id)
}

// DeleteApp removes the app with the given id. Deleting an id that does not
// exist is a no-op: no document change and no save.
func (s *Store) DeleteApp(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Apps {
		if s.doc.Apps[i].ID == id {
			s.doc.Apps = append(s.doc.Apps[:i], s.doc.Apps[i+1:]...)
			s.save()
			return true
		}
	}
	return false
}

// MoveApp reassigns an app to the category of the section it was dropped
// onto. Only that app's category changes.
func (s *Store) MoveApp(id int64, category string) error {
	if category == "" {
		category = "General"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Apps {
		if s.doc.Apps[i].ID == id {
			s.doc.Apps[i].Category = category
			s.save()
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrAppNotFound, id)
}

// Categories returns the lexicographically sorted set of distinct category
// strings present in the apps. Category display order is always derived,
// never stored.
func (s *Store) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(s.doc.Apps))
	var out []string
	for _, app := range s.doc.Apps {
		if _, ok := seen[app.Category]; !ok {
			seen[app.Category] = struct{}{}
			out = append(out, app.Category)
		}
	}
	sort.Strings(out)
	return out
}

// SetWidgets replaces the widget settings map wholesale. This is the
// close-of-modal save: toggles and display-mode selects accumulate
// client-side and land here together. Unknown ids are kept; ids missing
// from the input are synthesized disabled.
func (s *Store) SetWidgets(settings map[string]WidgetSetting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.WidgetSettings = make(map[string]WidgetSetting, len(settings))
	for id, ws := range settings {
		s.doc.WidgetSettings[id] = ws
	}
	s.doc.EnsureWidgets()
	s.save()
}

// SettingsInput carries a settings-modal save. Picked, when present, is the
// autocomplete candidate the user selected; it short-circuits the geocoding
// round-trip when its name still matches the typed city.
type SettingsInput struct {
	City    string         `json:"city"`
	Picked  *Location      `json:"picked,omitempty"`
	BgType  BackgroundType `json:"bgType"`
	BgValue string         `json:"bgValue"`
}

// SaveSettings resolves the weather location and persists the global
// settings. A city that resolves to nothing, or a geocoding transport
// failure, aborts the save with the document unchanged.
func (s *Store) SaveSettings(ctx context.Context, in SettingsInput, geocoder Geocoder) (Settings, error) {
	s.mu.Lock()
	current := s.doc.Settings
	s.mu.Unlock()

	next := current
	switch {
	case in.City == "" || in.City == current.WeatherCity:
		// Unchanged city, keep the saved location.
	case in.Picked != nil && in.Picked.Name == in.City:
		next.WeatherCity = in.Picked.Name
		next.WeatherLat = in.Picked.Latitude
		next.WeatherLon = in.Picked.Longitude
	default:
		locs, err := geocoder.Geocode(ctx, in.City, 1)
		if err != nil {
			return current, fmt.Errorf("geocoding %q: %w", in.City, err)
		}
		if len(locs) == 0 {
			return current, fmt.Errorf("%w: %q", ErrCityNotFound, in.City)
		}
		// The provider's canonical name wins over the raw input.
		next.WeatherCity = locs[0].Name
		next.WeatherLat = locs[0].Latitude
		next.WeatherLon = locs[0].Longitude
	}

	switch in.BgType {
	case BackgroundGradient:
		next.BgType = BackgroundGradient
		next.BgValue = ""
	case BackgroundURL, BackgroundUpload:
		next.BgType = in.BgType
		next.BgValue = in.BgValue
	case "":
		// Background untouched.
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Settings = next
	s.save()
	return next, nil
}

// Replace swaps in a full document, reconciling stale shapes first so the
// store never holds a non-canonical document. This backs the config
// endpoint's full-replace POST.
func (s *Store) Replace(raw []byte) Document {
	doc, _ := Reconcile(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.save()
	return s.doc.Clone()
}
