/*
Copyright 2025 Recon Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix returns a new entity ID prefixed with the module name,
// e.g. "job_8f14e45f-...". The prefix makes IDs self-describing in logs and
// audit trails.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()

	return fmt.Sprintf("%s_%s", module, id.String())
}
