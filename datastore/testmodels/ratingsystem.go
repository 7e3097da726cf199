/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package testmodels holds models shared by engine tests.
package testmodels

import "github.com/go-openapi/strfmt"

// RatingSystem has a caller-assigned string key and nullable columns.
type RatingSystem struct {
	ID          string           `bun:"id,pk" json:"Id"`
	Name        *string          `json:"Name"`
	Description *string          `json:"Description"`
	SiteURL     string           `json:"SiteUrl,omitempty"`
	Ratings     int64            `json:"Ratings"`
	CreatedAt   *strfmt.DateTime `json:"CreatedAt"`
	UpdatedAt   *strfmt.DateTime `json:"UpdatedAt"`
}

// Rating is a score given under a rating system. Its key is assigned on save.
type Rating struct {
	ID       int64   `bun:"id,pk,autoincrement"`
	SystemID string  `bun:"system_id"`
	Player   string  `bun:"player"`
	Score    float64 `bun:"score"`
	Comment  *string `bun:"comment"`
}

// AuditEntry has no primary key.
type AuditEntry struct {
	Action string `bun:"action"`
	Actor  string `bun:"actor"`
	At     strfmt.DateTime
}

func StrPtr(s string) *string { return &s }
