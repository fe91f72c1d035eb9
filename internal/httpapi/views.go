package httpapi

import (
	"time"

	"classhub.org/internal/auth"
)

// View types keep credential material out of responses: hashes, salts, and
// raw token strings have no JSON representation here.

type roleView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type planWindowView struct {
	PlanID  string    `json:"planId"`
	Name    string    `json:"name,omitempty"`
	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`
}

type subscriptionView struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Plans  []planWindowView `json:"plans"`
}

type organizationView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Subscription *subscriptionView `json:"subscription,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	DeletedAt    *time.Time        `json:"deletedAt,omitempty"`
}

type subjectView struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Role           *roleView  `json:"role,omitempty"`
	OrganizationID string     `json:"organizationId,omitempty"`
	ActiveAt       *time.Time `json:"activeAt,omitempty"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

func viewSubject(s *auth.Subject) subjectView {
	v := subjectView{
		ID:             s.ID,
		Email:          s.Email,
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		OrganizationID: s.OrganizationID,
		ActiveAt:       s.ActiveAt,
		LastLoginAt:    s.LastLoginAt,
		DeletedAt:      s.DeletedAt,
	}
	if s.Role != nil {
		v.Role = &roleView{ID: s.Role.ID, Name: string(s.Role.Name)}
	}
	return v
}

func viewSubjects(subjects []*auth.Subject) []subjectView {
	out := make([]subjectView, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, viewSubject(s))
	}
	return out
}

func viewOrganization(o *auth.Organization) organizationView {
	v := organizationView{
		ID:        o.ID,
		Name:      o.Name,
		CreatedAt: o.CreatedAt,
		DeletedAt: o.DeletedAt,
	}
	if o.Subscription != nil {
		sub := subscriptionView{
			ID:     o.Subscription.ID,
			Status: string(o.Subscription.Status),
			Plans:  make([]planWindowView, 0, len(o.Subscription.Plans)),
		}
		for _, sp := range o.Subscription.Plans {
			pv := planWindowView{PlanID: sp.PlanID, StartAt: sp.StartAt, EndAt: sp.EndAt}
			if sp.Plan != nil {
				pv.Name = string(sp.Plan.Name)
			}
			sub.Plans = append(sub.Plans, pv)
		}
		v.Subscription = &sub
	}
	return v
}

func viewOrganizations(orgs []*auth.Organization) []organizationView {
	out := make([]organizationView, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, viewOrganization(o))
	}
	return out
}
