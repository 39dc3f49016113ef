// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package sys

// Default is the host id written into new entries on this platform.
const Default = HostFAT
