/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package shapes

import (
	"github.com/pkg/errors"
)

// CheckCompatible checks that actual can be used where expected is declared: same dtype and dimensions
// (recursively for tuples). Layouts are not compared.
func CheckCompatible(expected, actual Shape) error {
	if !expected.Equal(actual) {
		return errors.Errorf("shape %s is not compatible with the expected shape %s", actual, expected)
	}
	return nil
}
