//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package config

import (
	"fmt"
	"strconv"
	"strings"
)

func Enabled(value string) bool {
	switch strings.ToLower(value) {
	case "on", "enabled", "1", "true":
		return true
	default:
		return false
	}
}

// PositiveInt parses the value of the environment variable envName and
// rejects anything that is not strictly greater than zero.
func PositiveInt(envName, value string) (int, error) {
	asInt, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s as int: %w", envName, err)
	}
	if asInt <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0, got %d", envName, asInt)
	}
	return asInt, nil
}
