package models

import "encoding/json"

const (
	ActionLoginSuccess      = "LOGIN_SUCCESS"
	ActionLoginFailNoUser   = "LOGIN_FAIL_NOUSER"
	ActionLoginFailDisabled = "LOGIN_FAIL_DISABLED"
	ActionLoginFailBadPW    = "LOGIN_FAIL_BADPW"
	ActionLoginThrottle     = "LOGIN_THROTTLE"
	ActionLogout            = "LOGOUT"
	ActionStepUpSuccess     = "STEPUP_SUCCESS"
	ActionStepUpFail        = "STEPUP_FAIL"
	ActionUserCreate        = "USER_CREATE"
	ActionUserDisable       = "USER_DISABLE"
	ActionUserEnable        = "USER_ENABLE"
	ActionRoleAssign        = "ROLE_ASSIGN"
	ActionClientCreate      = "CLIENT_CREATE"
	ActionClientRevoke      = "CLIENT_REVOKE"
	ActionClientBundle      = "CLIENT_BUNDLE"
	ActionCCDWrite          = "CCD_WRITE"
	ActionPasswordChange    = "PASSWORD_CHANGE"
)

// NoTarget marks audit entries without a meaningful target.
const NoTarget = "-"

type AuditEntry struct {
	ID        string          `json:"id"`
	TS        int64           `json:"ts"`
	ActorUser string          `json:"actor_user"`
	Action    string          `json:"action"`
	Target    string          `json:"target"`
	IP        string          `json:"ip"`
	UserAgent string          `json:"user_agent"`
	Details   json.RawMessage `json:"details"`
}
