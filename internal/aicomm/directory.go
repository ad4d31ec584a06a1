package aicomm

import "github.com/agentrun/agentrun/pkg/models"

// ProfileLookup resolves an agent ID to its owning profile, the same
// narrow seam internal/contextbuild and internal/toolselect use to avoid
// depending on a concrete profile store.
type ProfileLookup interface {
	ProfileByID(agentID string) (models.AgenticProfile, bool, error)
}

// ProfileDirectory implements SameUserChecker against a ProfileLookup.
type ProfileDirectory struct {
	profiles ProfileLookup
}

// NewProfileDirectory constructs a ProfileDirectory.
func NewProfileDirectory(profiles ProfileLookup) *ProfileDirectory {
	return &ProfileDirectory{profiles: profiles}
}

// SameUser reports whether the two agents belong to the same user.
func (d *ProfileDirectory) SameUser(senderID, receiverID string) (string, bool, error) {
	sender, ok, err := d.profiles.ProfileByID(senderID)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	receiver, ok, err := d.profiles.ProfileByID(receiverID)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return sender.UserID, sender.UserID == receiver.UserID, nil
}
