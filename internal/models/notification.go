package models

// NotificationData carries the structured fields a client routes on when the
// user taps a notification.
type NotificationData struct {
	ListingID string `json:"listing_id"`
	DeepLink  string `json:"deep_link"`
}

// NotificationPayload is the message handed to the push delivery gateway for
// a single device.
type NotificationPayload struct {
	Target string           `json:"target"`
	Title  string           `json:"title"`
	Body   string           `json:"body"`
	Data   NotificationData `json:"data"`
}
