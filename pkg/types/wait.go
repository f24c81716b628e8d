// Package types 定义 evbridge 公共类型
//
// 本文件定义等待时长相关常量。
package types

import "time"

// Forever 表示不设截止时间的等待
//
// 所有阻塞操作都要求调用方显式给出时长，
// 无限等待必须显式传入 Forever，不存在隐式的默认值。
const Forever time.Duration = -1

// NoWait 表示不阻塞
const NoWait time.Duration = 0
