package replay

import "errors"

// ErrInvalidRange is returned when a replay range or step cannot advance.
var ErrInvalidRange = errors.New("replay range must satisfy from < to and step > 0")
