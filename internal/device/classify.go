package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Reason is the classified cause of a rejected install.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonSignatureMismatch
	ReasonInsufficientStorage
	ReasonVersionDowngrade
	ReasonIncompatible
	ReasonAlreadyExists
	ReasonInvalidPackage
	ReasonUserRestricted
	ReasonUnknown
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonSignatureMismatch:
		return "SignatureMismatch"
	case ReasonInsufficientStorage:
		return "InsufficientStorage"
	case ReasonVersionDowngrade:
		return "VersionDowngrade"
	case ReasonIncompatible:
		return "Incompatible"
	case ReasonAlreadyExists:
		return "AlreadyExists"
	case ReasonInvalidPackage:
		return "InvalidPackage"
	case ReasonUserRestricted:
		return "UserRestricted"
	case ReasonUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Reason(%d)", r)
	}
}

// Retryable reports whether the same package could install after the
// operator fixes something on the device.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonInsufficientStorage, ReasonUserRestricted, ReasonUnknown:
		return true
	default:
		return false
	}
}

// Hint is a one-line suggestion shown next to the reason.
func (r Reason) Hint() string {
	switch r {
	case ReasonSignatureMismatch:
		return "The installed app was signed with a different key. Uninstall it first."
	case ReasonInsufficientStorage:
		return "Free up space on the device and retry."
	case ReasonVersionDowngrade:
		return "A newer version is installed. Uninstall it or pick a newer release."
	case ReasonIncompatible:
		return "This build does not support the device (SDK level, ABI or features)."
	case ReasonAlreadyExists:
		return "The package or one of its components conflicts with an installed app."
	case ReasonInvalidPackage:
		return "The downloaded file is not a valid package. Check the release asset."
	case ReasonUserRestricted:
		return "The device blocked the install. Check the screen for a prompt or policy."
	case ReasonUnknown:
		return "The device reported an unrecognised failure. See the output below."
	default:
		return ""
	}
}

var failureToken = regexp.MustCompile(`\b(INSTALL_(?:PARSE_)?FAILED_[A-Z0-9_]+)\b`)

var reasonByToken = map[string]Reason{
	"INSTALL_FAILED_UPDATE_INCOMPATIBLE":             ReasonSignatureMismatch,
	"INSTALL_FAILED_SHARED_USER_INCOMPATIBLE":        ReasonSignatureMismatch,
	"INSTALL_PARSE_FAILED_INCONSISTENT_CERTIFICATES": ReasonSignatureMismatch,
	"INSTALL_PARSE_FAILED_NO_CERTIFICATES":           ReasonSignatureMismatch,
	"INSTALL_PARSE_FAILED_CERTIFICATE_ENCODING":      ReasonSignatureMismatch,
	"INSTALL_FAILED_INSUFFICIENT_STORAGE":            ReasonInsufficientStorage,
	"INSTALL_FAILED_MEDIA_UNAVAILABLE":               ReasonInsufficientStorage,
	"INSTALL_FAILED_VERSION_DOWNGRADE":               ReasonVersionDowngrade,
	"INSTALL_FAILED_OLDER_SDK":                       ReasonIncompatible,
	"INSTALL_FAILED_NEWER_SDK":                       ReasonIncompatible,
	"INSTALL_FAILED_NO_MATCHING_ABIS":                ReasonIncompatible,
	"INSTALL_FAILED_CPU_ABI_INCOMPATIBLE":            ReasonIncompatible,
	"INSTALL_FAILED_MISSING_FEATURE":                 ReasonIncompatible,
	"INSTALL_FAILED_MISSING_SHARED_LIBRARY":          ReasonIncompatible,
	"INSTALL_FAILED_TEST_ONLY":                       ReasonIncompatible,
	"INSTALL_FAILED_DEPRECATED_SDK_VERSION":          ReasonIncompatible,
	"INSTALL_FAILED_ALREADY_EXISTS":                  ReasonAlreadyExists,
	"INSTALL_FAILED_DUPLICATE_PACKAGE":               ReasonAlreadyExists,
	"INSTALL_FAILED_DUPLICATE_PERMISSION":            ReasonAlreadyExists,
	"INSTALL_FAILED_CONFLICTING_PROVIDER":            ReasonAlreadyExists,
	"INSTALL_FAILED_INVALID_APK":                     ReasonInvalidPackage,
	"INSTALL_FAILED_INVALID_URI":                     ReasonInvalidPackage,
	"INSTALL_PARSE_FAILED_NOT_APK":                   ReasonInvalidPackage,
	"INSTALL_PARSE_FAILED_BAD_MANIFEST":              ReasonInvalidPackage,
	"INSTALL_PARSE_FAILED_UNEXPECTED_EXCEPTION":      ReasonInvalidPackage,
	"INSTALL_PARSE_FAILED_MANIFEST_MALFORMED":        ReasonInvalidPackage,
	"INSTALL_PARSE_FAILED_MANIFEST_EMPTY":            ReasonInvalidPackage,
	"INSTALL_PARSE_FAILED_BAD_PACKAGE_NAME":          ReasonInvalidPackage,
	"INSTALL_PARSE_FAILED_BAD_SHARED_USER_ID":        ReasonInvalidPackage,
	"INSTALL_FAILED_USER_RESTRICTED":                 ReasonUserRestricted,
	"INSTALL_FAILED_VERIFICATION_FAILURE":            ReasonUserRestricted,
	"INSTALL_FAILED_VERIFICATION_TIMEOUT":            ReasonUserRestricted,
	"INSTALL_FAILED_ABORTED":                         ReasonUserRestricted,
	"INSTALL_FAILED_SESSION_INVALID":                 ReasonUnknown,
	"INSTALL_FAILED_INTERNAL_ERROR":                  ReasonUnknown,
	"INSTALL_PARSE_FAILED_SKIPPED":                   ReasonUnknown,
	"INSTALL_FAILED_PACKAGE_CHANGED":                 ReasonUnknown,
	"INSTALL_FAILED_UID_CHANGED":                     ReasonSignatureMismatch,
	"INSTALL_FAILED_PERMISSION_MODEL_DOWNGRADE":      ReasonVersionDowngrade,
	"INSTALL_FAILED_SANDBOX_VERSION_DOWNGRADE":       ReasonVersionDowngrade,
	"INSTALL_FAILED_WRONG_INSTALLED_VERSION":         ReasonVersionDowngrade,
	"INSTALL_FAILED_MULTIPACKAGE_INCONSISTENCY":      ReasonInvalidPackage,
	"INSTALL_FAILED_INSTANT_APP_INVALID":             ReasonInvalidPackage,
	"INSTALL_FAILED_BAD_DEX_METADATA":                ReasonInvalidPackage,
	"INSTALL_FAILED_BAD_SIGNATURE":                   ReasonSignatureMismatch,
	"INSTALL_FAILED_DUPLICATE_PERMISSION_GROUP":      ReasonAlreadyExists,
	"INSTALL_FAILED_CONTAINER_ERROR":                 ReasonInsufficientStorage,
	"INSTALL_FAILED_INVALID_INSTALL_LOCATION":        ReasonInsufficientStorage,
}

// ClassifyInstallOutput reads the text printed by "pm install". It reports
// success only when a line reads "Success" and no failure token appears.
// Otherwise the first INSTALL_*FAILED_* token decides the reason, and text
// without a recognised token is ReasonUnknown.
func ClassifyInstallOutput(text string) (ok bool, reason Reason) {
	if token := failureToken.FindString(text); token != "" {
		if r, found := reasonByToken[token]; found {
			return false, r
		}
		return false, ReasonUnknown
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "Success" {
			return true, ReasonNone
		}
	}
	return false, ReasonUnknown
}

// FailureToken returns the first INSTALL_*FAILED_* token in text, if any.
func FailureToken(text string) string {
	return failureToken.FindString(text)
}
