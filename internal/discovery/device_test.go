package discovery

import "testing"

func TestEndpoint_Address(t *testing.T) {
	tests := []struct {
		name     string
		endpoint *Endpoint
		expected string
	}{
		{
			name:     "IPv4",
			endpoint: &Endpoint{IP: "192.168.1.20", Port: 37099},
			expected: "192.168.1.20:37099",
		},
		{
			name:     "IPv6 is bracketed",
			endpoint: &Endpoint{IP: "fe80::1", Port: 40001},
			expected: "[fe80::1]:40001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.endpoint.Address(); got != tt.expected {
				t.Errorf("Endpoint.Address() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEndpoint_String(t *testing.T) {
	tests := []struct {
		name     string
		endpoint *Endpoint
		expected string
	}{
		{
			name:     "with serial",
			endpoint: &Endpoint{Instance: "adb-R58M123ABC-Xy7qZk", Serial: "R58M123ABC", IP: "192.168.1.20", Port: 37099},
			expected: "Android device R58M123ABC at 192.168.1.20:37099",
		},
		{
			name:     "falls back to instance",
			endpoint: &Endpoint{Instance: "Pixel 7", IP: "10.0.0.5", Port: 5555},
			expected: "Android device Pixel 7 at 10.0.0.5:5555",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.endpoint.String(); got != tt.expected {
				t.Errorf("Endpoint.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEndpoint_GetMetadata(t *testing.T) {
	ep := &Endpoint{Metadata: map[string]string{"v": "ADB_SECURE_SERVICE_VERSION_1"}}
	if got := ep.GetMetadata("v"); got != "ADB_SECURE_SERVICE_VERSION_1" {
		t.Errorf("GetMetadata(v) = %q", got)
	}
	if got := ep.GetMetadata("missing"); got != "" {
		t.Errorf("GetMetadata(missing) = %q", got)
	}
	if got := (&Endpoint{}).GetMetadata("v"); got != "" {
		t.Errorf("GetMetadata() with nil map = %q", got)
	}
}
