package notify

import "errors"

var (
	errEmailDisabled      = errors.New("email delivery is not configured")
	errUnsupportedChannel = errors.New("unsupported channel")
)
