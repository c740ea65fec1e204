// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ragchat command line.
//
// # Commands
//
//	ragchat login | register | logout | whoami
//	ragchat chat                    interactive chat with streamed answers
//	ragchat ask "question"          one answer, markdown on a terminal
//	ragchat conversations list | show | delete | export
//	ragchat feedback <message-id> up|down
//	ragchat categories | suggest
//	ragchat config show | path | keys | get | set | init
//
// Every command accepts --json for machine-readable output. Exit codes
// distinguish usage (2), configuration (3), session (4), network (5),
// not found (7) and timeout (8) failures.
package cli
