package auth

import (
	"context"
	"errors"
)

// ErrDeviceForbidden indicates the caller's token does not cover the device.
var ErrDeviceForbidden = errors.New("auth: device not in token scope")

// EnsureDeviceAccess checks the device against the token's device scope.
// Requests without a scoped identity, such as auth-exempt routes, pass.
func EnsureDeviceAccess(ctx context.Context, deviceID string) error {
	if ctx == nil || deviceID == "" {
		return nil
	}
	set, ok := ctx.Value(contextKeyDevices).(map[string]struct{})
	if !ok {
		return nil
	}
	if _, allowed := set[deviceID]; !allowed {
		return ErrDeviceForbidden
	}
	return nil
}
