// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"k8s.io/klog/v2"
)

// klogWriter redirects klog output (emitted by vendored k8s-adjacent
// packages, such as the cpuset parser) into a named Logger at debug level.
type klogWriter struct {
	l Logger
}

// RedirectKlog routes klog output into the named logger's debug stream.
func RedirectKlog(source string) {
	klog.SetOutput(&klogWriter{l: reg.get(source)})
}

// Write implements io.Writer for klogWriter.
func (k *klogWriter) Write(p []byte) (int, error) {
	k.l.Debug("%s", string(p))
	return len(p), nil
}
