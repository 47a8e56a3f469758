package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample ZipCase configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/zipcase/config.yaml.
Use --config to specify a custom path.

The generated file targets a single-node local deployment (badger store,
in-memory queues, local credential encryption). Edit it to point at your
court portal and, for production, at DynamoDB/SQS/KMS.

Examples:
  # Initialize with default location
  zipcase init

  # Initialize with custom path
  zipcase init --config /etc/zipcase/config.yaml

  # Force overwrite existing config
  zipcase init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		// Use custom path
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		// Use default path
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set portal.base_url to your court portal")
	fmt.Println("  2. Start the server with: zipcase start")
	fmt.Printf("  3. Or specify custom config: zipcase start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random JWT secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and use an environment variable:")
	fmt.Println("    # Generates a 64-character hex string (32 bytes of entropy)")
	fmt.Printf("    export %s=$(openssl rand -hex 32)\n", config.EnvJWTSecret)

	return nil
}
