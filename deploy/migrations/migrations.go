package migrations

import "embed"

// Files 内嵌 deployments 与 transactions 两张表的建表脚本，文件名前缀即版本号。
//
//go:embed *.sql
var Files embed.FS
