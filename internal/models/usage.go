package models

// Quota is a user's monthly usage counter and limit.
type Quota struct {
	UsedMinutes  int    `json:"used_minutes"`
	LimitMinutes int    `json:"limit_minutes"`
	Period       string `json:"period"`
}
