package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListing_HasCoordinates(t *testing.T) {
	withCoords := Listing{Coordinates: &Location{Lat: 1, Lon: 2}}
	assert.True(t, withCoords.HasCoordinates())

	withoutCoords := Listing{}
	assert.False(t, withoutCoords.HasCoordinates())
}

func TestRegistration_Matchable(t *testing.T) {
	cases := []struct {
		name string
		reg  Registration
		want bool
	}{
		{"location and radius", Registration{Location: &Location{Lat: 1, Lon: 2}, Radius: 10}, true},
		{"missing location", Registration{Radius: 10}, false},
		{"zero radius", Registration{Location: &Location{Lat: 1, Lon: 2}}, false},
		{"negative radius", Registration{Location: &Location{Lat: 1, Lon: 2}, Radius: -1}, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.reg.Matchable())
		})
	}
}

func TestListingEvent_JSONShape(t *testing.T) {
	event := ListingEvent{
		ID:          "abc",
		OwnerID:     "merchant-1",
		Coordinates: &Location{Lat: 37.7749, Lon: -122.4194},
		Category:    "bakery",
		Status:      ListingLive,
	}

	data, err := json.Marshal(event)
	assert.NoError(t, err)

	var out ListingEvent
	assert.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, event.ID, out.ID)
	assert.NotNil(t, out.Coordinates)
	assert.Equal(t, 37.7749, out.Coordinates.Lat)
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole(RoleAdmin))
	assert.True(t, IsValidRole(RoleMerchant))
	assert.True(t, IsValidRole(RoleViewer))
	assert.False(t, IsValidRole(Role("superuser")))
}

func TestUser_HasPermission(t *testing.T) {
	admin := User{Role: RoleAdmin}
	assert.True(t, admin.HasPermission("create_listing"))
	assert.True(t, admin.HasPermission("anything_at_all"))

	merchant := User{Role: RoleMerchant}
	assert.True(t, merchant.HasPermission("create_listing"))
	assert.True(t, merchant.HasPermission("end_listing"))
	assert.True(t, merchant.HasPermission("register_device"))

	viewer := User{Role: RoleViewer}
	assert.False(t, viewer.HasPermission("create_listing"))
	assert.True(t, viewer.HasPermission("view_listings"))
	assert.True(t, viewer.HasPermission("register_device"))
}
