package requests

import (
	"errors"
	"fmt"
	"strings"

	"github.com/midrand-elite/meg-services/internal/models"
)

var ErrIllegalTransition = errors.New("illegal status transition")

var transitions = map[models.RequestStatus][]models.RequestStatus{
	models.StatusPending:    {models.StatusAccepted, models.StatusCancelled},
	models.StatusAccepted:   {models.StatusInProgress},
	models.StatusInProgress: {models.StatusCompleted},
}

func CanTransition(from, to models.RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CheckTransition(from, to models.RequestStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

type Badge struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var badgeColors = map[models.RequestStatus]string{
	models.StatusPending:    "yellow",
	models.StatusAccepted:   "blue",
	models.StatusInProgress: "purple",
	models.StatusCompleted:  "green",
	models.StatusCancelled:  "red",
}

// BadgeFor renders a status as "In progress"-style text plus a colour token.
func BadgeFor(s models.RequestStatus) Badge {
	label := strings.ReplaceAll(string(s), "-", " ")
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	color, ok := badgeColors[s]
	if !ok {
		color = "gray"
	}
	return Badge{Label: label, Color: color}
}

type Action string

const (
	ActionAccept   Action = "accept"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

// Target is the status an action moves a request to.
func (a Action) Target() models.RequestStatus {
	switch a {
	case ActionAccept:
		return models.StatusAccepted
	case ActionStart:
		return models.StatusInProgress
	case ActionComplete:
		return models.StatusCompleted
	case ActionCancel:
		return models.StatusCancelled
	}
	return ""
}

// Actions lists the buttons u gets on r.
func Actions(u *models.User, r *models.ServiceRequest) []Action {
	if u == nil || r == nil {
		return nil
	}

	out := []Action{}
	switch u.Role {
	case models.RoleWorker:
		switch {
		case r.Status == models.StatusPending:
			out = append(out, ActionAccept)
		case r.Status == models.StatusAccepted && r.AssignedTo(u.ID):
			out = append(out, ActionStart)
		case r.Status == models.StatusInProgress && r.AssignedTo(u.ID):
			out = append(out, ActionComplete)
		}
	case models.RoleClient:
		if r.ClientID == u.ID && r.Status == models.StatusPending {
			out = append(out, ActionCancel)
		}
	}
	return out
}
