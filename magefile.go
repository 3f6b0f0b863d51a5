//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default 默认任务：显示帮助信息
func Default() {
	fmt.Println("SetPulse 构建系统")
	fmt.Println("================")
	fmt.Println("可用任务:")
	fmt.Println("  mage build      - 构建所有二进制文件")
	fmt.Println("  mage test       - 运行所有测试")
	fmt.Println("  mage lint       - 运行代码检查")
	fmt.Println("  mage coverage   - 生成测试覆盖率报告")
	fmt.Println("  mage docker:env - 启动基础环境 (Redis + InfluxDB)")
	fmt.Println("  mage docker:down - 停止所有服务")
	fmt.Println("  mage clean      - 清理构建产物")
}

// Build 构建所有二进制文件
func Build() error {
	mg.Deps(Clean)

	targets := []struct {
		name string
		path string
	}{
		{"api_server", "./cmd/api_server"},
		{"archiver", "./cmd/archiver"},
	}

	fmt.Println("🚀 开始构建 SetPulse 组件...")

	for _, target := range targets {
		fmt.Printf("📦 构建 %s...\n", target.name)
		output := filepath.Join("./dist", target.name)
		if runtime.GOOS == "windows" {
			output += ".exe"
		}

		cmd := exec.Command("go", "build", "-o", output, target.path)
		cmd.Env = os.Environ()
		cmd.Env = append(cmd.Env, "CGO_ENABLED=0")

		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("构建 %s 失败: %v\n输出: %s", target.name, err, string(out))
		}
	}

	fmt.Println("🎉 所有组件构建完成!")
	return nil
}

// Test 运行所有测试
func Test() error {
	fmt.Println("🧪 运行测试...")

	cmd := exec.Command("go", "test", "./pkg/...", "-v", "-timeout=5m")
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "[no test files]") &&
			!strings.Contains(string(output), "FAIL") &&
			!strings.Contains(string(output), "build failed") {
			fmt.Println("✅ 测试通过! (部分包没有测试文件)")
			return nil
		}
		fmt.Printf("测试失败输出:\n%s\n", string(output))
		return fmt.Errorf("测试失败: %v", err)
	}

	fmt.Println("✅ 测试通过!")
	return nil
}

// Lint 运行代码检查
func Lint() error {
	fmt.Println("🔍 运行代码检查...")

	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return fmt.Errorf("go vet 失败: %v", err)
	}

	if err := sh.RunV("gofmt", "-l", "-w", "./pkg", "./cmd"); err != nil {
		return fmt.Errorf("gofmt 失败: %v", err)
	}

	fmt.Println("✅ 代码检查通过!")
	return nil
}

// Coverage 生成测试覆盖率报告
func Coverage() error {
	fmt.Println("📊 生成测试覆盖率报告...")

	if err := os.MkdirAll("./dist", 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %v", err)
	}

	if err := sh.RunV("go", "test", "./pkg/...", "-coverprofile=./dist/coverage.out"); err != nil {
		return fmt.Errorf("覆盖率测试失败: %v", err)
	}

	if err := sh.RunV("go", "tool", "cover", "-html=./dist/coverage.out", "-o", "./dist/coverage.html"); err != nil {
		return fmt.Errorf("生成覆盖率报告失败: %v", err)
	}

	fmt.Println("✅ 覆盖率报告保存到 ./dist/coverage.html")
	return nil
}

type Docker mg.Namespace

// Env 启动基础环境服务 (redis, influxdb)
func (Docker) Env() error {
	fmt.Println("🚀 启动基础环境服务 (redis, influxdb)...")
	return sh.RunV("docker-compose", "-f", "docker-compose.dev.yml", "-p", "setpulse-dev", "up", "-d", "redis", "influxdb")
}

// Down 停止所有开发环境服务
func (Docker) Down() error {
	fmt.Println("🛑 停止所有服务...")
	return sh.RunV("docker-compose", "-f", "docker-compose.dev.yml", "-p", "setpulse-dev", "down")
}

// Clean 清理构建产物
func Clean() error {
	fmt.Println("🧹 清理构建产物...")
	return os.RemoveAll("./dist")
}
