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

// our default logger
var deflog = reg.get(processName())

// Default returns the default Logger.
func Default() Logger {
	return deflog
}

// Info formats and emits an informational message with the default source.
func Info(format string, args ...interface{}) {
	deflog.Info(format, args...)
}

// Warn formats and emits a warning message with the default source.
func Warn(format string, args ...interface{}) {
	deflog.Warn(format, args...)
}

// Error formats and emits an error message with the default source.
func Error(format string, args ...interface{}) {
	deflog.Error(format, args...)
}

// Fatal formats and emits an error message with the default source and os.Exit()'s.
func Fatal(format string, args ...interface{}) {
	deflog.Fatal(format, args...)
}

// Panic formats and emits an error message with the default source and panics.
func Panic(format string, args ...interface{}) {
	deflog.Panic(format, args...)
}

// Debug formats and emits a debug message with the default source.
func Debug(format string, args ...interface{}) {
	deflog.Debug(format, args...)
}
