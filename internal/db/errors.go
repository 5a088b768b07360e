package db

import (
	"errors"
	"fmt"

	"github.com/thebtf/domainforge/pkg/models"
)

// ErrDuplicateDomain is returned when a domain name collides with another
// non-rejected proposal or an already deployed domain.
var ErrDuplicateDomain = errors.New("domain name already in use")

// TransitionError reports a rejected proposal status transition. The caller
// is always told the current status; the proposal is left unchanged.
type TransitionError struct {
	ProposalID int64
	From       models.ProposalStatus
	To         models.ProposalStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("proposal %d cannot transition from %q to %q", e.ProposalID, e.From, e.To)
}
