/*
 *
 *  * Licensed to the Apache Software Foundation (ASF) under one or more
 *  * contributor license agreements.  See the NOTICE file distributed with
 *  * this work for additional information regarding copyright ownership.
 *  * The ASF licenses this file to You under the Apache License, Version 2.0
 *  * (the "License"); you may not use this file except in compliance with
 *  * the License.  You may obtain a copy of the License at
 *  *
 *  *     http://www.apache.org/licenses/LICENSE-2.0
 *  *
 *  * Unless required by applicable law or agreed to in writing, software
 *  * distributed under the License is distributed on an "AS IS" BASIS,
 *  * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  * See the License for the specific language governing permissions and
 *  * limitations under the License.
 *
 */

package utils

import (
	"os"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// GoWithRecover runs handler in a goroutine and logs a panic instead of
// crashing the process. recoverHandler, if set, receives the panic value.
func GoWithRecover(handler func(), recoverHandler func(r interface{})) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("goroutine panic: %v\n%s", r, string(debug.Stack()))
				if recoverHandler != nil {
					go func() {
						defer func() {
							if p := recover(); p != nil {
								logrus.Errorf("recover goroutine panic: %v\n%s", p, string(debug.Stack()))
							}
						}()
						recoverHandler(r)
					}()
				}
			}
		}()
		handler()
	}()
}

// SetupLogger configures the standard logrus logger. format is "text" or "json".
func SetupLogger(level, format string) error {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lv)
	logrus.SetOutput(os.Stderr)
	if strings.EqualFold(format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

var _hostname string

func GetHostname() string {
	if _hostname != "" {
		return _hostname
	}

	hostname, err := os.Hostname()
	if err != nil {
		return ""
	}
	_hostname = hostname
	return _hostname
}
