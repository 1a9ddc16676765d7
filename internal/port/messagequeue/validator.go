package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/tenantdesk/internal/domain/session"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects outside tenants.*
// pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectTenantSwitched, SubjectTenantCreated, SubjectTenantUpdated, SubjectTenantMemberInvited:
	default:
		if strings.HasPrefix(subject, "tenants.") {
			return fmt.Errorf("unknown tenant subject %s", subject)
		}
		return nil
	}

	var ev session.TenantEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if ev.EventID == "" || ev.Principal == "" || ev.TenantID == "" {
		return fmt.Errorf("schema validation failed for %s: event_id, principal and tenant_id are required", subject)
	}
	if subject == SubjectTenantMemberInvited && ev.Email == "" {
		return fmt.Errorf("schema validation failed for %s: email is required", subject)
	}
	return nil
}
