package storage

import "errors"

var errNoBytes = errors.New("storage: cannot map an empty file")
