package models

import "context"

// UserAttributes are the user level values guards can reference: custom
// attributes as c.<key> and tag collections as t.<collection>.
type UserAttributes struct {
	Attributes map[string]any      `json:"attributes,omitempty"`
	Tags       map[string][]string `json:"tags,omitempty"`
}

// AttributeSource supplies the current user's attributes.
type AttributeSource interface {
	UserAttributes(ctx context.Context) (UserAttributes, error)
}

// StaticAttributes is an AttributeSource returning a fixed value.
type StaticAttributes UserAttributes

func (s StaticAttributes) UserAttributes(context.Context) (UserAttributes, error) {
	return UserAttributes(s), nil
}

// DeviceInfo describes the host device, exposed to guards as d.<field>.
type DeviceInfo struct {
	APILevel   int    `json:"api_level"`
	OS         string `json:"os,omitempty"`
	OSVersion  string `json:"os_version,omitempty"`
	Platform   string `json:"platform,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Country    string `json:"country,omitempty"`
}
