package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/harrylevesque/stationbook/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

type navLink struct {
	Label string
	Href  string
}

// navBar is the fixed navigation shown around every screen of a role region.
type navBar struct {
	Role  models.Role
	Links []navLink
}

var userNav = &navBar{
	Role: models.RoleUser,
	Links: []navLink{
		{"Home", "/user/home"},
		{"Booking history", "/user/booking-history"},
		{"Chatbot", "/user/chatbot"},
		{"Profile", "/user/profile"},
	},
}

var ownerNav = &navBar{
	Role: models.RoleOwner,
	Links: []navLink{
		{"Dashboard", "/owner/dashboard"},
		{"Add station", "/owner/add-station"},
		{"Bookings", "/owner/Bookings"},
		{"Profile", "/owner/profile"},
	},
}

type screen struct {
	Title       string
	Description string
}

var (
	screenUserHome       = screen{"Home", "Find a station near you and book a slot."}
	screenStationDetails = screen{"Station details", "Availability, pricing and booking for this station."}
	screenBookingHistory = screen{"Booking history", "Your past and upcoming bookings."}
	screenChatBot        = screen{"Assistant", "Ask about stations, bookings or your account."}
	screenProfile        = screen{"Profile", "Your account details."}
	screenOwnerDashboard = screen{"Dashboard", "Your stations at a glance."}
	screenAddStation     = screen{"Add station", "Register a new station."}
	screenOwnerBookings  = screen{"Bookings", "Bookings across your stations."}
)

type pageData struct {
	Title      string
	Nav        *navBar
	Screen     screen
	StationID  string
	Profile    *models.Profile
	Error      string
	Notice     string
	Email      string
	FullName   string
	SignupRole string
	CSRFToken  string
}

type pageSet map[string]*template.Template

var pages = mustLoadPages("login", "signup", "screen")

func mustLoadPages(names ...string) pageSet {
	set := make(pageSet, len(names))
	for _, name := range names {
		set[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return set
}

// render executes into a buffer first so a template error never leaves a half-written page.
func (p pageSet) render(w http.ResponseWriter, status int, name string, data pageData) error {
	t, ok := p[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
