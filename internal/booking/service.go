package booking

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Status of a booking
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

const dateLayout = "2006-01-02"

var (
	ErrNotFound         = errors.New("booking not found")
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
	ErrNotModifiable    = errors.New("booking can no longer be modified")
	ErrInvalidDate      = errors.New("invalid date, expected YYYY-MM-DD")
)

// Details describes one flight booking
type Details struct {
	BookingNumber string `json:"bookingNumber" yaml:"bookingNumber"`
	FirstName     string `json:"firstName" yaml:"firstName"`
	LastName      string `json:"lastName" yaml:"lastName"`
	Date          string `json:"date" yaml:"date"`
	Status        Status `json:"bookingStatus" yaml:"bookingStatus"`
	From          string `json:"from" yaml:"from"`
	To            string `json:"to" yaml:"to"`
	BookingClass  string `json:"bookingClass" yaml:"bookingClass"`
}

// Change holds the new itinerary for a booking
type Change struct {
	Date string
	From string
	To   string
}

// Service is an in-memory booking store. Every operation identifies the
// customer by booking number plus first and last name.
type Service struct {
	mu       sync.RWMutex
	bookings map[string]Details
}

// NewService creates a service seeded with bookings
func NewService(seed []Details) (*Service, error) {
	s := &Service{bookings: make(map[string]Details, len(seed))}
	for _, b := range seed {
		if b.BookingNumber == "" {
			return nil, errors.New("seed booking without booking number")
		}
		if _, err := time.Parse(dateLayout, b.Date); err != nil {
			return nil, fmt.Errorf("booking %s: %w", b.BookingNumber, ErrInvalidDate)
		}
		if b.Status == "" {
			b.Status = StatusConfirmed
		}
		s.bookings[normalizeNumber(b.BookingNumber)] = b
	}
	return s, nil
}

// LoadFile reads a YAML seed file of the form {bookings: [...]}
func LoadFile(path string) ([]Details, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bookings file: %w", err)
	}

	var file struct {
		Bookings []Details `yaml:"bookings"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse bookings file %s: %w", path, err)
	}
	return file.Bookings, nil
}

// DefaultBookings is the demo data used when no seed file is configured
func DefaultBookings() []Details {
	return []Details{
		{BookingNumber: "BK123", FirstName: "John", LastName: "Doe", Date: "2026-11-20", Status: StatusConfirmed, From: "LHR", To: "JFK", BookingClass: "ECONOMY"},
		{BookingNumber: "BK456", FirstName: "Jane", LastName: "Smith", Date: "2026-12-05", Status: StatusConfirmed, From: "CDG", To: "SFO", BookingClass: "BUSINESS"},
		{BookingNumber: "BK789", FirstName: "Ali", LastName: "Khan", Date: "2026-09-14", Status: StatusCompleted, From: "DXB", To: "SIN", BookingClass: "PREMIUM_ECONOMY"},
	}
}

// Get returns the booking matching number and customer name
func (s *Service) Get(number, firstName, lastName string) (Details, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(number, firstName, lastName)
}

// Change moves a confirmed booking to a new date and route
func (s *Service) Change(number, firstName, lastName string, change Change) (Details, error) {
	if _, err := time.Parse(dateLayout, change.Date); err != nil {
		return Details{}, ErrInvalidDate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.find(number, firstName, lastName)
	if err != nil {
		return Details{}, err
	}
	if b.Status != StatusConfirmed {
		return Details{}, fmt.Errorf("%w: status is %s", ErrNotModifiable, b.Status)
	}

	b.Date = change.Date
	if change.From != "" {
		b.From = change.From
	}
	if change.To != "" {
		b.To = change.To
	}
	s.bookings[normalizeNumber(number)] = b
	return b, nil
}

// Cancel marks a booking cancelled
func (s *Service) Cancel(number, firstName, lastName string) (Details, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.find(number, firstName, lastName)
	if err != nil {
		return Details{}, err
	}
	switch b.Status {
	case StatusCancelled:
		return Details{}, ErrAlreadyCancelled
	case StatusCompleted:
		return Details{}, fmt.Errorf("%w: status is %s", ErrNotModifiable, b.Status)
	}

	b.Status = StatusCancelled
	s.bookings[normalizeNumber(number)] = b
	return b, nil
}

// List returns all bookings ordered by booking number
func (s *Service) List() []Details {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Details, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingNumber < out[j].BookingNumber })
	return out
}

func (s *Service) find(number, firstName, lastName string) (Details, error) {
	b, ok := s.bookings[normalizeNumber(number)]
	if !ok {
		return Details{}, fmt.Errorf("%w: %s", ErrNotFound, number)
	}
	// Name mismatch reads as not found
	if !strings.EqualFold(strings.TrimSpace(firstName), b.FirstName) ||
		!strings.EqualFold(strings.TrimSpace(lastName), b.LastName) {
		return Details{}, fmt.Errorf("%w: %s", ErrNotFound, number)
	}
	return b, nil
}

func normalizeNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}
