package urls

// Documentation URLs for setup and troubleshooting

// ADB is the Android Debug Bridge guide, covering USB debugging and the
// adb server.
const ADB = "https://developer.android.com/tools/adb"

// WirelessDebugging explains pairing a device for adb over Wi-Fi.
const WirelessDebugging = "https://developer.android.com/tools/adb#connect-to-a-device-over-wi-fi"

// PersonalAccessTokens describes creating the token read from
// GH_ACCESS_TOKEN.
const PersonalAccessTokens = "https://docs.github.com/en/authentication/keeping-your-account-and-data-secure/managing-your-personal-access-tokens"

// RateLimits documents the GitHub REST API request limits.
const RateLimits = "https://docs.github.com/en/rest/using-the-rest-api/rate-limits-for-the-rest-api"
