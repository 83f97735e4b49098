package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wentf9/nirvana/cmd/utils"
	"github.com/wentf9/nirvana/pkg/crypto"
)

func NewCmdSeal() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seal [secret]",
		Short: "加密一个密码, 输出可写入配置文件的 ENC: 值",
		Long: `使用本地密钥 (默认 ~/.nirvana/key, 不存在时自动生成) 加密一个密码,
输出的 ENC: 值可直接用于 password、passphrase 和 sudo_password 字段。
不提供参数时从终端读取, 避免密码留在 shell 历史中。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				if !utils.IsTerminal() {
					return errors.New("no secret given and stdin is not a terminal")
				}
				var err error
				if secret, err = utils.ReadPasswordFromTerminal("密码: "); err != nil {
					return err
				}
			}
			if secret == "" {
				return errors.New("secret is empty")
			}

			key, err := crypto.LoadOrGenerateKey(globalOpts.KeyFile)
			if err != nil {
				return err
			}
			c, err := crypto.NewCrypter(key)
			if err != nil {
				return err
			}
			sealed, err := c.Seal(secret)
			if err != nil {
				return err
			}
			fmt.Println(sealed)
			return nil
		},
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(NewCmdSeal())
}
