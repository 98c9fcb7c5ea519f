package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token with a company required
)

// EndpointSecurityConfig maps gRPC methods to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	"/grpc.health.v1.Health/Check": SecurityPublic,
	"/grpc.health.v1.Health/List":  SecurityPublic,
	"/grpc.health.v1.Health/Watch": SecurityPublic,
}

// GetSecurityLevel returns the security level for a given method
func GetSecurityLevel(method string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[method]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAccess
}
